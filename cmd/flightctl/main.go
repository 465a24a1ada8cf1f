package main

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli"

	"flightledger/internal/chain"
	"flightledger/internal/config"
	"flightledger/internal/ledger"
)

func main() {
	app := cli.NewApp()
	app.Name = "flightctl"
	app.Usage = "operator tool for the flight ledger"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "data",
			Value: "./data",
			Usage: "ledger data directory",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:      "verify",
			Usage:     "verify an archived flight ledger's hash chain",
			ArgsUsage: "<file>",
			Action:    verifyCmd,
		},
		{
			Name:  "stuck",
			Usage: "list active flight ledgers that were never ended",
			Flags: []cli.Flag{
				cli.DurationFlag{
					Name:  "max-age",
					Value: 30 * time.Minute,
					Usage: "age beyond which an active flight counts as stuck",
				},
			},
			Action: stuckCmd,
		},
		{
			Name:   "reset",
			Usage:  "back up and clear all flight data, restarting numbering",
			Action: resetCmd,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func verifyCmd(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.NewExitError("usage: flightctl verify <file>", 1)
	}
	verdict, blocks, err := chain.VerifyFile(c.Args().First())
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("verify: %v", err), 1)
	}
	if !verdict.Secured {
		return cli.NewExitError(fmt.Sprintf("FAIL: %s (last hash: %s)", verdict.Message, verdict.LastHash), 2)
	}
	fmt.Printf("OK: %s, %d blocks, last hash %s\n", verdict.Message, len(blocks), verdict.LastHash)
	return nil
}

func openLedger(c *cli.Context) (*ledger.Ledger, error) {
	return ledger.New(ledger.Options{
		DataDir: c.GlobalString("data"),
		UAVKeys: config.Defaults().UAVs,
	})
}

func stuckCmd(c *cli.Context) error {
	l, err := openLedger(c)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("open ledger: %v", err), 1)
	}
	stuck, err := l.StuckFlights(c.Duration("max-age"))
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("scan: %v", err), 1)
	}
	if len(stuck) == 0 {
		fmt.Println("no stuck flights")
		return nil
	}
	for _, f := range stuck {
		state := "active"
		if f.Orphaned {
			state = "orphaned"
		}
		fmt.Printf("flight %d: %s, age %ds\n", f.FlightID, state, f.AgeSecs)
	}
	return nil
}

func resetCmd(c *cli.Context) error {
	l, err := openLedger(c)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("open ledger: %v", err), 1)
	}
	report, err := l.Reset()
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("reset: %v", err), 1)
	}
	fmt.Printf("backed up %d archived and %d active ledgers to %s\n",
		report.ArchivedMoved, report.ActiveMoved, report.BackupDir)
	if report.CounterRemoved {
		fmt.Println("flight counter removed; numbering restarts at 1")
	}
	return nil
}
