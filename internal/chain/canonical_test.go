package chain

import (
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/require"
)

func TestCanonicalJSONSortsKeysAtEveryDepth(t *testing.T) {
	v := map[string]interface{}{
		"zeta": 1,
		"alpha": map[string]interface{}{
			"c": true,
			"a": []interface{}{map[string]interface{}{"y": 2, "x": 1}},
		},
	}
	out, err := CanonicalJSON(v)
	require.NoError(t, err)
	require.Equal(t, `{"alpha":{"a":[{"x":1,"y":2}],"c":true},"zeta":1}`, string(out))
}

func TestCanonicalJSONKeepsArrayOrder(t *testing.T) {
	out, err := CanonicalJSON([]interface{}{3, 1, 2})
	require.NoError(t, err)
	require.Equal(t, `[3,1,2]`, string(out))
}

func TestCanonicalJSONDoesNotEscapeHTML(t *testing.T) {
	out, err := CanonicalJSON(map[string]interface{}{"note": "a<b&c>d"})
	require.NoError(t, err)
	require.Equal(t, `{"note":"a<b&c>d"}`, string(out))
}

func TestCanonicalJSONStructAndMapAgree(t *testing.T) {
	tx := Transaction{TxID: "T1", Kind: TxTelemetry, UAVSupi: "UAV_A1",
		Telemetry: &Telemetry{XPos: 1.5, YPos: -2, ZAlt: -10, VelMag: 3.25}}
	fromStruct, err := CanonicalJSON(tx)
	require.NoError(t, err)

	fromMap, err := CanonicalJSON(map[string]interface{}{
		"telemetry": map[string]interface{}{"vel_mag": 3.25, "z_alt": -10, "y_pos": -2, "x_pos": 1.5},
		"uav_supi":  "UAV_A1",
		"kind":      "TELEMETRY",
		"tx_id":     "T1",
	})
	require.NoError(t, err)
	require.Equal(t, string(fromStruct), string(fromMap))
}

func TestCanonicalJSONDeterministic(t *testing.T) {
	f := func(a int64, b float64, s string) bool {
		v := map[string]interface{}{"a": a, "b": b, "s": s, "nested": map[string]interface{}{"s": s, "a": a}}
		first, err := CanonicalJSON(v)
		if err != nil {
			return false
		}
		second, err := CanonicalJSON(v)
		if err != nil {
			return false
		}
		return string(first) == string(second)
	}
	if err := quick.Check(f, nil); err != nil {
		t.Fatalf("property check failed: %v", err)
	}
}
