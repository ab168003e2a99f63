// Package jstest evaluates generated JavaScript in an embedded QuickJS
// runtime for tests.
package jstest

import (
	"fmt"
	"testing"

	"github.com/fastschema/qjs"
	"github.com/stretchr/testify/require"
)

// Eval runs each script in order in one fresh global scope and returns the
// string value of the last script's completion value.
func Eval(t *testing.T, scripts ...string) string {
	t.Helper()

	rt, err := qjs.New(qjs.Option{})
	require.NoError(t, err)
	t.Cleanup(func() { rt.Close() })

	ctx := rt.Context()
	var out string
	for i, script := range scripts {
		val, err := ctx.Eval(fmt.Sprintf("script%d.js", i), qjs.Code(script))
		require.NoError(t, err, "evaluating script %d", i)
		out = val.String()
		val.Free()
	}
	return out
}
