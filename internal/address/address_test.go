package address

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/scout/internal/account"
	"github.com/mrz1836/scout/internal/device"
	"github.com/mrz1836/scout/internal/device/soft"
	"github.com/mrz1836/scout/internal/network"
	scouterr "github.com/mrz1836/scout/pkg/errors"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

// discovered builds an account the way discovery would for the test seed.
func discovered(t *testing.T, n network.Network) account.Account {
	t.Helper()
	dev, err := soft.New(testMnemonic, "", nil)
	require.NoError(t, err)

	descs, err := dev.Descriptors(context.Background(), []device.DescriptorRequest{{
		Symbol:      n.Symbol,
		Path:        n.Path(0),
		NetworkType: n.Type,
		AccountType: n.AccountType,
		Testnet:     n.Testnet,
	}})
	require.NoError(t, err)

	return account.Account{
		Symbol:      n.Symbol,
		AccountType: n.AccountType,
		NetworkType: n.Type,
		Path:        n.Path(0),
		Descriptor:  descs[0],
	}
}

func btcNetwork(t *testing.T, accountType network.AccountType) network.Network {
	t.Helper()
	nets, err := network.DefaultCatalog().BySymbol("btc")
	require.NoError(t, err)
	for _, n := range nets {
		if n.AccountType == accountType {
			return n
		}
	}
	t.Fatalf("no btc %s network", accountType)
	return network.Network{}
}

func TestDerive_KnownVectors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		accountType network.AccountType
		want        string
	}{
		{network.AccountNormal, "bc1qcr8te4kr609gcawutmrza0j4xv80jy8z306fyu"},
		{network.AccountSegwit, "37VucYSaXLCAsxYyAPfbSi9eh4iEcbShgf"},
		{network.AccountLegacy, "1LqBGSKuX5yYUonjxT5qGfpUsXKYYWeabA"},
		{network.AccountTaproot, "bc1p5cyxnuxmeuwuvkwfem96lqzszd02n6xdcjrs20cac6yqjjwudpxqkedrcr"},
	}
	for _, tc := range tests {
		t.Run(string(tc.accountType), func(t *testing.T) {
			t.Parallel()
			acct := discovered(t, btcNetwork(t, tc.accountType))

			got, err := Derive(acct, External, 0)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestReceive(t *testing.T) {
	t.Parallel()
	acct := discovered(t, btcNetwork(t, network.AccountNormal))

	addrs, err := Receive(acct, 3)
	require.NoError(t, err)
	require.Len(t, addrs, 3)
	assert.Equal(t, "bc1qcr8te4kr609gcawutmrza0j4xv80jy8z306fyu", addrs[0])
	assert.NotEqual(t, addrs[0], addrs[1])
	assert.NotEqual(t, addrs[1], addrs[2])
}

func TestDerive_ChangeDiffersFromReceive(t *testing.T) {
	t.Parallel()
	acct := discovered(t, btcNetwork(t, network.AccountNormal))

	receive, err := Derive(acct, External, 0)
	require.NoError(t, err)
	change, err := Derive(acct, Internal, 0)
	require.NoError(t, err)
	assert.NotEqual(t, receive, change)
}

func TestDerive_Ethereum(t *testing.T) {
	t.Parallel()
	acct := account.Account{Symbol: "eth", NetworkType: network.TypeEthereum, Descriptor: "0x9858EfFD232B4033E47d90003D41EC34EcaEda94"}

	addrs, err := Receive(acct, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{acct.Descriptor}, addrs)
}

func TestDerive_Unsupported(t *testing.T) {
	t.Parallel()

	_, err := Derive(account.Account{Symbol: "ltc", NetworkType: network.TypeBitcoin, Descriptor: "zpub"}, External, 0)
	require.ErrorIs(t, err, scouterr.ErrNotSupported)

	_, err = Derive(account.Account{Symbol: "xrp", NetworkType: network.TypeRipple}, External, 0)
	require.ErrorIs(t, err, scouterr.ErrNotSupported)
}

func TestDerive_BadDescriptor(t *testing.T) {
	t.Parallel()
	_, err := Derive(account.Account{Symbol: "btc", NetworkType: network.TypeBitcoin, Descriptor: "not-a-key"}, External, 0)
	require.ErrorIs(t, err, scouterr.ErrDescriptorMismatch)
}

func TestExtendedKey(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "xpubABC", ExtendedKey("tr([73c5da0a/86'/0'/0']xpubABC/<0;1>/*)"))
	assert.Equal(t, "xpubABC", ExtendedKey("wpkh(xpubABC/0/*)"))
	assert.Equal(t, "zpubABC", ExtendedKey("zpubABC"))
}
