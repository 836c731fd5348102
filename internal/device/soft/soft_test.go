package soft

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/scout/internal/device"
	"github.com/mrz1836/scout/internal/network"
	"github.com/mrz1836/scout/internal/secret"
	scouterr "github.com/mrz1836/scout/pkg/errors"
)

func TestMain(m *testing.M) {
	secret.SetScryptWorkFactor(10)
	os.Exit(m.Run())
}

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func newTestDevice(t *testing.T) *Device {
	t.Helper()
	d, err := New(testMnemonic, "", []network.AccountType{network.AccountLegacy})
	require.NoError(t, err)
	return d
}

func TestNew_StateFromFingerprint(t *testing.T) {
	t.Parallel()

	d := newTestDevice(t)
	assert.Equal(t, "73c5da0a", d.Fingerprint())
	assert.Equal(t, "soft-73c5da0a", d.State())

	withPass, err := New(testMnemonic, "TREZOR", nil)
	require.NoError(t, err)
	assert.NotEqual(t, d.State(), withPass.State(), "passphrase changes the device state")
}

func TestNew_InvalidMnemonic(t *testing.T) {
	t.Parallel()

	_, err := New("abandon abandon", "", nil)
	require.ErrorIs(t, err, scouterr.ErrInvalidMnemonic)
}

func TestDevice_Supports(t *testing.T) {
	t.Parallel()

	d := newTestDevice(t)
	assert.True(t, d.Supports(network.Network{Type: network.TypeBitcoin}))
	assert.True(t, d.Supports(network.Network{Type: network.TypeEthereum}))
	assert.False(t, d.Supports(network.Network{Type: network.TypeCardano}))
	assert.False(t, d.Supports(network.Network{Type: network.TypeRipple}))
}

func TestDevice_AvailableDerivations(t *testing.T) {
	t.Parallel()

	d := newTestDevice(t)
	got, err := d.AvailableDerivations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []network.AccountType{network.AccountLegacy}, got)

	got[0] = network.AccountLedger
	again, _ := d.AvailableDerivations(context.Background())
	assert.Equal(t, network.AccountLegacy, again[0], "returned slice is a copy")
}

func TestDevice_Descriptors_KnownVectors(t *testing.T) {
	t.Parallel()

	d := newTestDevice(t)
	got, err := d.Descriptors(context.Background(), []device.DescriptorRequest{
		{Symbol: "btc", Path: "m/84'/0'/0'", NetworkType: network.TypeBitcoin},
		{Symbol: "btc", Path: "m/86'/0'/0'", NetworkType: network.TypeBitcoin, AccountType: network.AccountTaproot},
		{Symbol: "eth", Path: "m/44'/60'/0'/0/0", NetworkType: network.TypeEthereum},
	})
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "zpub6rFR7y4Q2AijBEqTUquhVz398htDFrtymD9xYYfG1m4wAcvPhXNfE3EfH1r1ADqtfSdVCToUG868RvUUkgDKf31mGDtKsAYz2oz2AGutZYs", got[0])
	assert.Equal(t, "tr([73c5da0a/86'/0'/0']xpub6BgBgsespWvERF3LHQu6CnqdvfEvtMcQjYrcRzx53QJjSxarj2afYWcLteoGVky7D3UKDP9QyrLprQ3VCECoY49yfdDEHGCtMMj92pReUsQ/<0;1>/*)", got[1])
	assert.Equal(t, "0x9858EfFD232B4033E47d90003D41EC34EcaEda94", got[2])
}

func TestDevice_Descriptors_Prefixes(t *testing.T) {
	t.Parallel()

	d := newTestDevice(t)
	tests := []struct {
		path    string
		testnet bool
		prefix  string
	}{
		{"m/44'/0'/0'", false, "xpub"},
		{"m/49'/0'/0'", false, "ypub"},
		{"m/84'/0'/1'", false, "zpub"},
		{"m/84'/1'/0'", false, "vpub"},
		{"m/49'/1'/0'", true, "upub"},
		{"m/44'/1'/0'", true, "tpub"},
	}
	for _, tt := range tests {
		got, err := d.Descriptors(context.Background(), []device.DescriptorRequest{
			{Symbol: "btc", Path: tt.path, NetworkType: network.TypeBitcoin, Testnet: tt.testnet},
		})
		require.NoError(t, err, tt.path)
		assert.True(t, strings.HasPrefix(got[0], tt.prefix), "%s: got %s", tt.path, got[0])
	}
}

func TestDevice_Descriptors_FailsAtomically(t *testing.T) {
	t.Parallel()

	d := newTestDevice(t)
	got, err := d.Descriptors(context.Background(), []device.DescriptorRequest{
		{Symbol: "btc", Path: "m/84'/0'/0'", NetworkType: network.TypeBitcoin},
		{Symbol: "ada", Path: "m/1852'/1815'/0'", NetworkType: network.TypeCardano},
	})
	require.ErrorIs(t, err, scouterr.ErrNotSupported)
	assert.Nil(t, got)

	_, err = d.Descriptors(context.Background(), []device.DescriptorRequest{
		{Symbol: "btc", Path: "84'/0'/0'", NetworkType: network.TypeBitcoin},
	})
	require.ErrorIs(t, err, scouterr.ErrInvalidPath)
}

func TestDevice_Descriptors_Canceled(t *testing.T) {
	t.Parallel()

	d := newTestDevice(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Descriptors(ctx, []device.DescriptorRequest{
		{Symbol: "btc", Path: "m/84'/0'/0'", NetworkType: network.TypeBitcoin},
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestParsePath(t *testing.T) {
	t.Parallel()

	got, err := ParsePath("m/84'/0h/3")
	require.NoError(t, err)
	assert.Equal(t, []uint32{0x80000054, 0x80000000, 3}, got)
	assert.Equal(t, "m/84'/0'/3", FormatPath(got))

	for _, bad := range []string{"", "m", "x/1", "m/abc", "m/4294967295", "m/1/'"} {
		_, err := ParsePath(bad)
		require.ErrorIs(t, err, scouterr.ErrInvalidPath, bad)
	}
}

func TestValidateMnemonic(t *testing.T) {
	t.Parallel()

	require.NoError(t, ValidateMnemonic("  1. "+strings.ToUpper(testMnemonic)+"  "))

	err := ValidateMnemonic("abandon abandon")
	require.ErrorIs(t, err, scouterr.ErrInvalidMnemonic)

	typo := strings.Replace(testMnemonic, "about", "abuot", 1)
	err = ValidateMnemonic(typo)
	require.ErrorIs(t, err, scouterr.ErrInvalidMnemonic)
	var se *scouterr.ScoutError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, se.Suggestion, "word 12")
}

func TestSuggestWord(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "abandon", SuggestWord("abandon"))
	assert.Equal(t, "abandon", SuggestWord("abandn"))
	assert.Empty(t, SuggestWord("qqqqqqqqqq"))
}

func TestGenerateMnemonic(t *testing.T) {
	t.Parallel()

	m, err := GenerateMnemonic(12)
	require.NoError(t, err)
	assert.Len(t, strings.Fields(m), 12)
	require.NoError(t, ValidateMnemonic(m))

	m, err = GenerateMnemonic(24)
	require.NoError(t, err)
	assert.Len(t, strings.Fields(m), 24)

	_, err = GenerateMnemonic(15)
	require.ErrorIs(t, err, ErrInvalidWordCount)
}

func TestSaveLoadMnemonic_Encrypted(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "mnemonic.age")
	require.NoError(t, SaveMnemonic(path, testMnemonic, "hunter2"))

	got, err := LoadMnemonic(path, true, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, testMnemonic, got)

	_, err = LoadMnemonic(path, true, "wrong")
	require.ErrorIs(t, err, scouterr.ErrDecryptionFailed)

	require.ErrorIs(t, SaveMnemonic(path, testMnemonic, "hunter2"), ErrMnemonicExists)
}

func TestSaveLoadMnemonic_Plain(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "mnemonic.txt")
	require.NoError(t, SaveMnemonic(path, testMnemonic, ""))

	got, err := LoadMnemonic(path, false, "")
	require.NoError(t, err)
	assert.Equal(t, testMnemonic, got)
}

func TestLoadMnemonic_Missing(t *testing.T) {
	t.Parallel()

	_, err := LoadMnemonic(filepath.Join(t.TempDir(), "none"), false, "")
	require.ErrorIs(t, err, scouterr.ErrDeviceNotFound)
}
