package vault_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conveyor/internal/queuelock"
	"conveyor/internal/services"
	"conveyor/internal/testsupport"
	"conveyor/internal/vault"
)

type fixture struct {
	svc   *vault.Service
	store *vault.Store
	lock  *queuelock.Lock
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDatabase(t, cfg)
	store := vault.NewStore(db)
	lock := queuelock.New()
	return fixture{
		svc:   vault.New(store, lock, vault.ParamsFrom(cfg.Vault)),
		store: store,
		lock:  lock,
	}
}

func spec(user, password string) vault.AccountSpec {
	return vault.AccountSpec{
		Host:            "grid.example.org",
		Port:            1247,
		Zone:            "tempZone",
		UserName:        user,
		Password:        password,
		DefaultResource: "demoResc",
		HomePath:        "/tempZone/home/" + user,
	}
}

func TestFirstValidationAdoptsPhraseAndMismatchClearsCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stored, err := f.svc.IsPassPhraseStored(ctx)
	require.NoError(t, err)
	assert.False(t, stored)

	require.NoError(t, f.svc.ValidatePassPhrase(ctx, "abc"))
	stored, err = f.svc.IsPassPhraseStored(ctx)
	require.NoError(t, err)
	assert.True(t, stored)

	account, err := f.svc.AddOrUpdateGridAccount(ctx, spec("alice", "s3cret"))
	require.NoError(t, err)

	err = f.svc.ValidatePassPhrase(ctx, "xyz")
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrPassPhraseInvalid))
	assert.False(t, f.svc.IsPassPhraseValidated())

	_, err = f.svc.AccountToCredential(account)
	assert.ErrorIs(t, err, services.ErrPassPhraseNotValidated)

	require.NoError(t, f.svc.ValidatePassPhrase(ctx, "abc"))
	cred, err := f.svc.AccountToCredential(account)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cred.Password)
}

func TestPasswordNeverStoredInClear(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.ValidatePassPhrase(ctx, "abc"))

	for _, password := range []string{"p", "with spaces and ünïcode", "0123456789012345678901234567890123456789"} {
		account, err := f.svc.AddOrUpdateGridAccount(ctx, spec("bob", password))
		require.NoError(t, err)
		stored, err := f.store.GetByID(ctx, account.ID)
		require.NoError(t, err)
		assert.NotEqual(t, password, stored.Password)

		cred, err := f.svc.AccountToCredential(stored)
		require.NoError(t, err)
		assert.Equal(t, password, cred.Password)
	}

	accounts, err := f.svc.ListGridAccounts(ctx)
	require.NoError(t, err)
	assert.Len(t, accounts, 1, "same identity must update in place")
}

func TestMutationsRequireValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddOrUpdateGridAccount(ctx, spec("carol", "pw"))
	assert.ErrorIs(t, err, services.ErrPassPhraseNotValidated)
	assert.ErrorIs(t, f.svc.DeleteGridAccount(ctx, 1), services.ErrPassPhraseNotValidated)
	assert.ErrorIs(t, f.svc.ResetAll(ctx), services.ErrPassPhraseNotValidated)
	assert.ErrorIs(t, f.svc.ChangePassPhrase(ctx, "new"), services.ErrPassPhraseNotValidated)
}

func TestAddOrUpdateValidatesSpec(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.ValidatePassPhrase(ctx, "abc"))

	bad := spec("", "pw")
	bad.Port = 0
	_, err := f.svc.AddOrUpdateGridAccount(ctx, bad)
	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrValidation)
	assert.Contains(t, err.Error(), "user_name is required")

	assert.ErrorIs(t, f.svc.ValidatePassPhrase(ctx, "   "), services.ErrValidation)
}

func TestChangePassPhrasePreservesPlaintext(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.ValidatePassPhrase(ctx, "old-phrase"))

	want := map[string]string{"alice": "alpha", "bob": "bravo", "carol": "charlie"}
	for user, password := range want {
		_, err := f.svc.AddOrUpdateGridAccount(ctx, spec(user, password))
		require.NoError(t, err)
	}
	before, err := f.svc.ListGridAccounts(ctx)
	require.NoError(t, err)

	require.NoError(t, f.svc.ChangePassPhrase(ctx, "new-phrase"))

	after, err := f.svc.ListGridAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, after, len(before))
	for i, account := range after {
		assert.NotEqual(t, before[i].Password, account.Password, "ciphertext should change")
		cred, err := f.svc.AccountToCredential(account)
		require.NoError(t, err)
		assert.Equal(t, want[account.UserName], cred.Password)
	}

	assert.ErrorIs(t, f.svc.ValidatePassPhrase(ctx, "old-phrase"), services.ErrPassPhraseInvalid)
	require.NoError(t, f.svc.ValidatePassPhrase(ctx, "new-phrase"))
	cred, err := f.svc.AccountToCredential(after[0])
	require.NoError(t, err)
	assert.Equal(t, want[after[0].UserName], cred.Password)
	assert.True(t, f.lock.IsIdle())
}

func TestDestructiveOperationsFailWhileRunning(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.ValidatePassPhrase(ctx, "abc"))
	account, err := f.svc.AddOrUpdateGridAccount(ctx, spec("dave", "delta"))
	require.NoError(t, err)

	require.True(t, f.lock.TryStartRunning())

	assert.ErrorIs(t, f.svc.DeleteGridAccount(ctx, account.ID), services.ErrConveyorBusy)
	assert.ErrorIs(t, f.svc.ResetAll(ctx), services.ErrConveyorBusy)
	assert.ErrorIs(t, f.svc.ChangePassPhrase(ctx, "other"), services.ErrConveyorBusy)

	stored, err := f.store.GetByID(ctx, account.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, account.Password, stored.Password)
	require.NoError(t, f.svc.ValidatePassPhrase(ctx, "abc"))

	f.lock.FinishRunning()
	require.NoError(t, f.svc.DeleteGridAccount(ctx, account.ID))
	gone, err := f.svc.FindGridAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
	assert.ErrorIs(t, f.svc.DeleteGridAccount(ctx, account.ID), services.ErrNotFound)
}

func TestResetAllAllowsNewPhrase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.ValidatePassPhrase(ctx, "abc"))
	_, err := f.svc.AddOrUpdateGridAccount(ctx, spec("erin", "echo"))
	require.NoError(t, err)

	require.NoError(t, f.svc.ResetAll(ctx))
	assert.False(t, f.svc.IsPassPhraseValidated())
	stored, err := f.svc.IsPassPhraseStored(ctx)
	require.NoError(t, err)
	assert.False(t, stored)
	accounts, err := f.svc.ListGridAccounts(ctx)
	require.NoError(t, err)
	assert.Empty(t, accounts)

	require.NoError(t, f.svc.ValidatePassPhrase(ctx, "fresh"))
}

func TestCredentialForMissingAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.ValidatePassPhrase(ctx, "abc"))
	_, err := f.svc.CredentialFor(ctx, 404)
	assert.ErrorIs(t, err, services.ErrNotFound)
}
