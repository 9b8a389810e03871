package remote

import (
	"testing"

	"github.com/stretchr/testify/require"

	"udpadijaya/posagent/internal/domain"
)

func TestDecodeEnvelopeAcceptsBareArray(t *testing.T) {
	var branches []domain.Branch
	require.NoError(t, DecodeEnvelope([]byte(`[{"id":1,"branch_name":"Pusat"}]`), &branches))
	require.Len(t, branches, 1)
	require.Equal(t, "Pusat", branches[0].BranchName)
}

func TestDecodeEnvelopeUsesDataKey(t *testing.T) {
	var branch domain.Branch
	require.NoError(t, DecodeEnvelope([]byte(`{"message":"ok","data":{"id":2,"branch_name":"Cabang"}}`), &branch))
	require.Equal(t, int64(2), branch.ID)
}

func TestDecodeEnvelopeFallsBackToAltKeys(t *testing.T) {
	var accounts []domain.Account
	raw := []byte(`{"message":"ok","users":[{"id":4,"username":"kasir1"}]}`)
	require.NoError(t, DecodeEnvelope(raw, &accounts, "users"))
	require.Len(t, accounts, 1)
	require.Equal(t, "kasir1", accounts[0].Username)
}

func TestDecodeEnvelopeSkipsNullData(t *testing.T) {
	var accounts []domain.Account
	raw := []byte(`{"data":null,"users":[{"id":4}]}`)
	require.NoError(t, DecodeEnvelope(raw, &accounts, "users"))
	require.Len(t, accounts, 1)
}

func TestDecodeEnvelopeBareObject(t *testing.T) {
	var account domain.Account
	require.NoError(t, DecodeEnvelope([]byte(`{"id":9,"username":"owner"}`), &account))
	require.Equal(t, "owner", account.Username)
}

func TestDecodeEnvelopeEmptyBody(t *testing.T) {
	var units []domain.Unit
	require.NoError(t, DecodeEnvelope(nil, &units))
	require.NoError(t, DecodeEnvelope([]byte(" null "), &units))
	require.Nil(t, units)
}

func TestDecodeEnvelopeMalformed(t *testing.T) {
	var units []domain.Unit
	require.Error(t, DecodeEnvelope([]byte(`{"data":"nope"}`), &units))
}

func TestExtractMessage(t *testing.T) {
	require.Equal(t, "gagal", extractMessage([]byte(`{"message":"gagal"}`)))
	require.Equal(t, "boom", extractMessage([]byte(`{"error":"boom"}`)))
	require.Empty(t, extractMessage([]byte(`<html>`)))
}
