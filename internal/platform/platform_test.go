package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Environment
		wantErr bool
	}{
		{in: "ios", want: IOS},
		{in: "Android", want: Android},
		{in: " web ", want: Web},
		{in: "windows", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtensionsPrecedence(t *testing.T) {
	exts := IOS.Extensions()
	require.NotEmpty(t, exts)
	assert.Equal(t, ".ios.tsx", exts[0])

	index := func(ext string) int {
		for i, e := range exts {
			if e == ext {
				return i
			}
		}
		return -1
	}
	assert.Less(t, index(".ios.ts"), index(".native.ts"))
	assert.Less(t, index(".native.ts"), index(".ts"))
	assert.Equal(t, -1, index(".android.ts"))

	assert.NotContains(t, Web.Extensions(), ".native.js")
	assert.Equal(t, ".web.tsx", Web.Extensions()[0])
}

func TestConditionsAndMainFields(t *testing.T) {
	assert.Equal(t, "react-native", Android.Conditions()[0])
	assert.Equal(t, "react-native", IOS.MainFields()[0])
	assert.Equal(t, "browser", Web.MainFields()[0])
	assert.True(t, IOS.IsNative())
	assert.False(t, Web.IsNative())
}
