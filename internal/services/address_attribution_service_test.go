package services

import (
	"context"
	"testing"

	"txstatus-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestClassify(t *testing.T) {
	users := newFakeUsers(
		&models.User{ID: "alice", PrimaryWalletAddress: aliceWallet},
		&models.User{ID: "bob", PrimaryWalletAddress: "0x2222222222222222222222222222222222222222"},
	)
	resolver := NewAddressAttributionResolver(users)

	tests := []struct {
		name     string
		from, to string
		want     Attribution
	}{
		{
			name: "acting user sends to known user",
			from: aliceWallet, to: bobWallet,
			want: Attribution{FromUserID: strPtr("alice"), ToUserID: strPtr("bob")},
		},
		{
			name: "acting user sends to external address",
			from: aliceWallet, to: strangerWallet,
			want: Attribution{FromUserID: strPtr("alice"), ToUserID: strPtr("alice"), ExternalCounterparty: true},
		},
		{
			name: "acting user receives from known user",
			from: bobWallet, to: aliceWallet,
			want: Attribution{FromUserID: strPtr("bob"), ToUserID: strPtr("alice")},
		},
		{
			name: "acting user receives from external address",
			from: strangerWallet, to: aliceWallet,
			want: Attribution{ToUserID: strPtr("alice")},
		},
		{
			name: "acting user is neither party",
			from: bobWallet, to: strangerWallet,
			want: Attribution{ToUserID: strPtr("alice")},
		},
		{
			name: "comparison ignores case",
			from: "0x1111111111111111111111111111111111111111", to: "0X2222222222222222222222222222222222222222",
			want: Attribution{FromUserID: strPtr("alice"), ToUserID: strPtr("bob")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolver.Classify(context.Background(), tt.from, tt.to, "alice", "0x1111111111111111111111111111111111111111")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassify_NoActingWalletFallsToThirdParty(t *testing.T) {
	resolver := NewAddressAttributionResolver(newFakeUsers())

	got, err := resolver.Classify(context.Background(), aliceWallet, bobWallet, "alice", "")
	require.NoError(t, err)
	assert.Nil(t, got.FromUserID)
	assert.Equal(t, strPtr("alice"), got.ToUserID)
}

func TestClassify_LookupErrorPropagates(t *testing.T) {
	users := newFakeUsers()
	users.err = errBoom
	resolver := NewAddressAttributionResolver(users)

	_, err := resolver.Classify(context.Background(), aliceWallet, bobWallet, "alice", aliceWallet)
	assert.ErrorIs(t, err, errBoom)
}

func TestResolveEffectiveTransfer_ERC20UsesFirstTransferEvent(t *testing.T) {
	d := nativeTx(txHash(1), aliceWallet, tokenContract, "0", models.LedgerTxConfirmed, 1)
	d.TokenTransfers = []models.TokenTransfer{
		{ContractAddress: "0xCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCC", From: "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA", To: "0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB", Value: "500"},
		{ContractAddress: "0xdddddddddddddddddddddddddddddddddddddddd", From: bobWallet, To: aliceWallet, Value: "9"},
	}

	eff := resolveEffectiveTransfer(d)
	assert.True(t, eff.IsERC20)
	assert.Equal(t, "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", eff.To)
	assert.Equal(t, aliceWallet, eff.From)
	assert.Equal(t, "500", eff.Amount)
	assert.Equal(t, tokenContract, eff.Token)
}

func TestResolveEffectiveTransfer_TransferFromKeepsSigner(t *testing.T) {
	// bob spends alice's allowance and pays a stranger
	d := nativeTx(txHash(1), bobWallet, tokenContract, "0", models.LedgerTxConfirmed, 1)
	d.TokenTransfers = []models.TokenTransfer{{ContractAddress: tokenContract, From: aliceWallet, To: strangerWallet, Value: "77"}}

	eff := resolveEffectiveTransfer(d)
	assert.Equal(t, bobWallet, eff.From)
	assert.Equal(t, strangerWallet, eff.To)
	assert.Equal(t, "77", eff.Amount)

	users := newFakeUsers(
		&models.User{ID: "alice", PrimaryWalletAddress: aliceWallet},
		&models.User{ID: "bob", PrimaryWalletAddress: bobWallet},
	)
	attr, err := NewAddressAttributionResolver(users).Classify(context.Background(), eff.From, eff.To, "bob", bobWallet)
	require.NoError(t, err)
	require.NotNil(t, attr.FromUserID)
	assert.Equal(t, "bob", *attr.FromUserID)
	assert.True(t, attr.ExternalCounterparty)
}

func TestResolveEffectiveTransfer_Native(t *testing.T) {
	d := nativeTx(txHash(1), aliceWallet, bobWallet, "1000", models.LedgerTxConfirmed, 1)

	eff := resolveEffectiveTransfer(d)
	assert.False(t, eff.IsERC20)
	assert.Equal(t, bobWallet, eff.To)
	assert.Equal(t, "1000", eff.Amount)
	assert.Equal(t, models.NativeTokenAddress, eff.Token)
}

func TestApplyLedgerDetails(t *testing.T) {
	record := models.NewPlaceholderRecord(txHash(1), sepoliaID, "sepolia", "alice")
	record.Metadata.Extensions = map[string]interface{}{"memo": "x"}

	d := nativeTx(txHash(1), aliceWallet, tokenContract, "0", models.LedgerTxConfirmed, 4)
	d.TokenTransfers = []models.TokenTransfer{{ContractAddress: tokenContract, From: aliceWallet, To: strangerWallet, Value: "0x1f4"}}
	eff := resolveEffectiveTransfer(d)
	attr := Attribution{FromUserID: strPtr("alice"), ToUserID: strPtr("alice"), ExternalCounterparty: true}

	require.NoError(t, applyLedgerDetails(record, d, eff, attr, sepoliaID, "sepolia"))

	assert.Equal(t, models.TransactionStatusPending, record.Status)
	assert.False(t, record.Metadata.IsPending)
	assert.False(t, record.HasPlaceholders())
	assert.Equal(t, strangerWallet, record.ToAddress)
	assert.Equal(t, "500", record.Amount)
	assert.Equal(t, tokenContract, record.TokenAddress)
	assert.True(t, record.Metadata.Blockchain.IsERC20Transfer)
	assert.Equal(t, tokenContract, record.Metadata.Blockchain.ContractAddress)
	assert.Equal(t, 1, record.Metadata.Blockchain.TransferEventCount)
	assert.Equal(t, uint64(4), record.Metadata.Blockchain.Confirmations)
	assert.Equal(t, true, record.Metadata.Extensions[extensionExternalCounterparty])
	assert.Equal(t, "x", record.Metadata.Extensions["memo"])
}

func TestApplyLedgerDetails_RejectsBadAmount(t *testing.T) {
	record := models.NewPlaceholderRecord(txHash(1), sepoliaID, "sepolia", "alice")
	d := nativeTx(txHash(1), aliceWallet, bobWallet, "-5", models.LedgerTxConfirmed, 1)

	err := applyLedgerDetails(record, d, resolveEffectiveTransfer(d), Attribution{}, sepoliaID, "sepolia")
	assert.Error(t, err)
}
