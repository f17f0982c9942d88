package rsmu

import (
	"testing"

	"rsmu-go/errcode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFamily(t *testing.T) {
	cases := map[string]Family{
		"8a34001":     ClockMatrix,
		"idt,8a34000": ClockMatrix,
		"82P33811":    Sabre,
		"8v19n850":    SnowLotus,
		"rc32312":     FemtoClock3,
		"FemtoClock3": FemtoClock3,
		" cm ":        ClockMatrix,
		"sabre":       Sabre,
	}
	for in, want := range cases {
		got, err := ParseFamily(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseFamily("8t49n241")
	assert.ErrorIs(t, err, errcode.UnsupportedDevice)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.ErrorIs(t, Config{}.Validate(), errcode.UnsupportedDevice)
	assert.ErrorIs(t, Config{Family: FemtoClock3, Revision: 9}.Validate(), errcode.InvalidArgument)

	_, err := New(nil, DefaultConfig())
	assert.ErrorIs(t, err, errcode.InvalidArgument)
}
