package envelope_test

import (
	"testing"

	"github.com/malbeclabs/envelope/envelope/pkg/envelope"
	envtesting "github.com/malbeclabs/envelope/utils/pkg/testing"
	"github.com/stretchr/testify/require"
)

func TestEnvelope_DeriveAddresses(t *testing.T) {
	t.Parallel()

	owner := envtesting.PublicKey(9)
	other := envtesting.PublicKey(10)

	us1, err := envelope.DeriveUserStateAddress(envelope.DefaultProgramID, owner)
	require.NoError(t, err)
	us2, err := envelope.DeriveUserStateAddress(envelope.DefaultProgramID, owner)
	require.NoError(t, err)
	require.Equal(t, us1, us2)

	usOther, err := envelope.DeriveUserStateAddress(envelope.DefaultProgramID, other)
	require.NoError(t, err)
	require.NotEqual(t, us1, usOther)

	e1, err := envelope.DeriveEnvelopeAddress(envelope.DefaultProgramID, owner, 1)
	require.NoError(t, err)
	e2, err := envelope.DeriveEnvelopeAddress(envelope.DefaultProgramID, owner, 2)
	require.NoError(t, err)
	eOther, err := envelope.DeriveEnvelopeAddress(envelope.DefaultProgramID, other, 1)
	require.NoError(t, err)
	require.NotEqual(t, e1, e2)
	require.NotEqual(t, e1, eOther)
	require.NotEqual(t, e1, us1)

	again, err := envelope.DeriveEnvelopeAddress(envelope.DefaultProgramID, owner, 1)
	require.NoError(t, err)
	require.Equal(t, e1, again)

	otherProgram, err := envelope.DeriveEnvelopeAddress(envtesting.PublicKey(200), owner, 1)
	require.NoError(t, err)
	require.NotEqual(t, e1, otherProgram)
}
