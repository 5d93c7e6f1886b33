package contract

import (
	"testing"

	"credregistry/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransferCredentialAlwaysRejected(t *testing.T) {
	env := issuerEnv(t)
	tokenID, err := env.contract.IssueCredential(env.as(deanID), studentAID, "ipfs://QmSoulbound")
	require.NoError(t, err)

	// Nobody can transfer: not the holder, not the issuer, not an admin.
	for _, caller := range []string{studentAID, deanID, registrarID, outsiderID} {
		err = env.contract.TransferCredential(env.as(caller), studentAID, studentBID, tokenID)
		require.ErrorIs(t, err, ErrNonTransferable, "caller %s", caller)

		err = env.contract.SafeTransferCredential(env.as(caller), studentAID, studentBID, tokenID)
		require.ErrorIs(t, err, ErrNonTransferable, "caller %s", caller)
	}

	rec, err := env.contract.GetCredential(env.as(outsiderID), tokenID)
	require.NoError(t, err)
	assert.Equal(t, studentAID, rec.Holder)
	assert.Equal(t, model.StatusActive, rec.Status)

	// Terminal records are just as non-transferable.
	require.NoError(t, env.contract.RevokeCredential(env.as(deanID), tokenID))
	err = env.contract.TransferCredential(env.as(studentAID), studentAID, studentBID, tokenID)
	require.ErrorIs(t, err, ErrNonTransferable)
}

func TestTransferCredentialRejectedEvenForUnknownToken(t *testing.T) {
	env := issuerEnv(t)

	// The guard rejects before any lookup; unknown ids get the same answer.
	err := env.contract.TransferCredential(env.as(studentAID), studentAID, studentBID, 404)
	require.ErrorIs(t, err, ErrNonTransferable)
}
