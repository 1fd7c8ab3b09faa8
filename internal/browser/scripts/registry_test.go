package scripts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_AllUnitsLoaded(t *testing.T) {
	names := Names()
	require.Len(t, names, len(catalog))

	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			u, err := Get(name)
			require.NoError(t, err)
			assert.Positive(t, u.Version)
			assert.NotEmpty(t, u.Source)
			// Every unit must be a bare function expression so Invoke can wrap it.
			body := u.Source
			for strings.HasPrefix(body, "//") {
				nl := strings.Index(body, "\n")
				require.NotEqual(t, -1, nl, "unit is only a comment")
				body = strings.TrimSpace(body[nl+1:])
			}
			assert.True(t, strings.HasPrefix(body, "function"), "unit %s must start with a function expression", name)
			assert.True(t, strings.HasSuffix(body, "}"), "unit %s must end with the function body", name)
		})
	}
}

func TestRegistry_UnknownUnit(t *testing.T) {
	_, err := Get("does_not_exist")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown unit")

	_, err = Call("does_not_exist")
	require.Error(t, err)
}

func TestInvoke_EncodesArguments(t *testing.T) {
	u := Unit{Name: "probe", Source: "function (a, b) { return a; }"}

	expr, err := u.Invoke("it's \"quoted\"", map[string]int{"n": 3})
	require.NoError(t, err)
	assert.Equal(t, "(function (a, b) { return a; }\n)(\"it's \\\"quoted\\\"\", {\"n\":3})", expr)

	expr, err = u.Invoke()
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(expr, "\n)()"))
}

func TestInvoke_UnencodableArgument(t *testing.T) {
	u := Unit{Name: "probe", Source: "function (a) {}"}
	_, err := u.Invoke(make(chan int))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encode argument 0")
}

func TestPatchUnits_AreGuarded(t *testing.T) {
	for _, name := range []string{PatchAutomation, PatchNavigator, PatchUAData, PatchVisibility, PatchCanvas, PatchWebGL, PatchPlugins, PatchGlobals} {
		u, err := Get(name)
		require.NoError(t, err)
		assert.Contains(t, u.Source, "Symbol.for('adscope.patch."+name+"')", "patch %s must carry an idempotency guard", name)
	}
}

func TestGuarded(t *testing.T) {
	out := Guarded("doThing()")
	assert.True(t, strings.HasPrefix(out, "try {"))
	assert.Contains(t, out, "doThing();")
	assert.Contains(t, out, "catch (e) {}")
}
