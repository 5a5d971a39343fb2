package vault

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"conveyor/internal/logging"
	"conveyor/internal/queuelock"
	"conveyor/internal/services"
)

const component = "vault"

// Service is the credential vault. The cached pass phrase and derived cipher
// are guarded by mu; rotation holds the write lock for its whole duration so a
// concurrent decrypt sees either the old context or the new one.
type Service struct {
	store  *Store
	lock   *queuelock.Lock
	params Params
	hasher PhraseHasher
	logger *slog.Logger

	mu     sync.RWMutex
	phrase string
	cipher *aeadCipher
}

// Option customizes a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logging.NewComponentLogger(logger, component)
	}
}

// WithHasher replaces the argon2id pass-phrase hasher.
func WithHasher(h PhraseHasher) Option {
	return func(s *Service) {
		if h != nil {
			s.hasher = h
		}
	}
}

// New constructs the vault over store, guarding destructive operations with lock.
func New(store *Store, lock *queuelock.Lock, params Params, opts ...Option) *Service {
	s := &Service{
		store:  store,
		lock:   lock,
		params: params,
		hasher: argonHasher{params: params.hashParams()},
		logger: logging.NewComponentLogger(nil, component),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IsPassPhraseStored reports whether a pass phrase has ever been adopted.
func (s *Service) IsPassPhraseStored(ctx context.Context) (bool, error) {
	entry, err := s.store.keyStore(ctx)
	if err != nil {
		return false, services.Wrap(services.ErrExecution, component, "read key store", "", err)
	}
	return entry != nil, nil
}

// IsPassPhraseValidated reports whether key material is currently cached.
func (s *Service) IsPassPhraseValidated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cipher != nil
}

// ValidatePassPhrase checks phrase against the KeyStore hash, adopting it when
// no KeyStore row exists. A mismatch clears any cached key material.
func (s *Service) ValidatePassPhrase(ctx context.Context, phrase string) error {
	if strings.TrimSpace(phrase) == "" {
		return services.Validation(component, "validate pass phrase", "pass phrase is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.store.keyStore(ctx)
	if err != nil {
		return services.Wrap(services.ErrExecution, component, "validate pass phrase", "read key store", err)
	}

	if entry == nil {
		salt, err := newSalt()
		if err != nil {
			return services.Wrap(services.ErrExecution, component, "validate pass phrase", "", err)
		}
		hash, err := s.hasher.Hash(phrase)
		if err != nil {
			return services.Wrap(services.ErrExecution, component, "validate pass phrase", "hash pass phrase", err)
		}
		if err := s.store.saveKeyStore(ctx, hash, salt); err != nil {
			return services.Wrap(services.ErrExecution, component, "validate pass phrase", "adopt pass phrase", err)
		}
		s.logger.Info("pass phrase adopted", logging.String(logging.FieldEventType, "pass_phrase_adopted"))
		return s.cacheLocked(phrase, salt)
	}

	ok, err := s.hasher.Matches(phrase, entry.PhraseHash)
	if err != nil {
		s.clearLocked()
		return services.Wrap(services.ErrExecution, component, "validate pass phrase", "compare hash", err)
	}
	if !ok {
		s.clearLocked()
		logging.WarnWithContext(s.logger, "pass phrase rejected", "pass_phrase_invalid",
			logging.String(logging.FieldErrorHint, "re-enter the pass phrase used when accounts were stored"))
		return services.Wrap(services.ErrPassPhraseInvalid, component, "validate pass phrase", "pass phrase does not match", nil)
	}
	return s.cacheLocked(phrase, entry.KDFSalt)
}

// ChangePassPhrase re-encrypts every account under newPhrase. It requires a
// current validation and an idle queue.
func (s *Service) ChangePassPhrase(ctx context.Context, newPhrase string) error {
	if strings.TrimSpace(newPhrase) == "" {
		return services.Validation(component, "change pass phrase", "new pass phrase is required")
	}
	if !s.IsPassPhraseValidated() {
		return notValidated("change pass phrase")
	}
	return s.lock.WithCriticalSection(func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.cipher == nil {
			return notValidated("change pass phrase")
		}

		accounts, err := s.store.List(ctx)
		if err != nil {
			return services.Wrap(services.ErrExecution, component, "change pass phrase", "list accounts", err)
		}
		salt, err := newSalt()
		if err != nil {
			return services.Wrap(services.ErrExecution, component, "change pass phrase", "", err)
		}
		next, err := deriveCipher(newPhrase, salt, s.params)
		if err != nil {
			return services.Wrap(services.ErrExecution, component, "change pass phrase", "derive key", err)
		}
		for _, account := range accounts {
			plain, err := s.cipher.Decrypt(account.Password)
			if err != nil {
				return services.Wrap(services.ErrExecution, component, "change pass phrase",
					"decrypt account "+account.Key(), err)
			}
			if account.Password, err = next.Encrypt(plain); err != nil {
				return services.Wrap(services.ErrExecution, component, "change pass phrase",
					"encrypt account "+account.Key(), err)
			}
		}
		hash, err := s.hasher.Hash(newPhrase)
		if err != nil {
			return services.Wrap(services.ErrExecution, component, "change pass phrase", "hash pass phrase", err)
		}
		if err := s.store.rotate(ctx, hash, salt, accounts); err != nil {
			return services.Wrap(services.ErrExecution, component, "change pass phrase", "persist rotation", err)
		}

		s.cipher.wipe()
		s.phrase, s.cipher = newPhrase, next
		s.logger.Info("pass phrase changed",
			logging.String(logging.FieldEventType, "pass_phrase_changed"),
			logging.Int("accounts", len(accounts)))
		return nil
	})
}

// AddOrUpdateGridAccount encrypts spec.Password and stores the account,
// updating the existing row for the same host/port/zone/user.
func (s *Service) AddOrUpdateGridAccount(ctx context.Context, spec AccountSpec) (*GridAccount, error) {
	if err := services.ValidateStruct(component, "save account", spec); err != nil {
		return nil, err
	}
	if spec.AuthScheme == "" {
		spec.AuthScheme = AuthStandard
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cipher == nil {
		return nil, notValidated("save account")
	}
	encrypted, err := s.cipher.Encrypt(spec.Password)
	if err != nil {
		return nil, services.Wrap(services.ErrExecution, component, "save account", "encrypt password", err)
	}

	host, zone, user := strings.TrimSpace(spec.Host), strings.TrimSpace(spec.Zone), strings.TrimSpace(spec.UserName)
	account, err := s.store.FindByIdentity(ctx, host, spec.Port, zone, user)
	if err != nil {
		return nil, services.Wrap(services.ErrExecution, component, "save account", "lookup account", err)
	}
	if account == nil {
		account = &GridAccount{Host: host, Port: spec.Port, Zone: zone, UserName: user}
	}
	account.Password = encrypted
	account.DefaultResource = strings.TrimSpace(spec.DefaultResource)
	account.HomePath = strings.TrimSpace(spec.HomePath)
	account.AuthScheme = spec.AuthScheme
	account.Comment = spec.Comment
	if err := s.store.Save(ctx, account); err != nil {
		return nil, services.Wrap(services.ErrExecution, component, "save account", "persist account", err)
	}
	s.logger.Info("grid account saved",
		logging.Int64(logging.FieldAccountID, account.ID),
		logging.String("account", account.Key()),
		logging.String(logging.FieldEventType, "account_saved"))
	return account, nil
}

// DeleteGridAccount removes an account and everything that references it.
func (s *Service) DeleteGridAccount(ctx context.Context, id int64) error {
	if !s.IsPassPhraseValidated() {
		return notValidated("delete account")
	}
	return s.lock.WithCriticalSection(func() error {
		account, err := s.store.GetByID(ctx, id)
		if err != nil {
			return services.Wrap(services.ErrExecution, component, "delete account", "lookup account", err)
		}
		if account == nil {
			return services.Wrap(services.ErrNotFound, component, "delete account", "no account with that id", nil)
		}
		if err := s.store.Delete(ctx, id); err != nil {
			return services.Wrap(services.ErrExecution, component, "delete account", "", err)
		}
		s.logger.Info("grid account deleted",
			logging.Int64(logging.FieldAccountID, id),
			logging.String(logging.FieldEventType, "account_deleted"))
		return nil
	})
}

// ResetAll deletes every account and the KeyStore row, then forgets the
// cached pass phrase so a new one can be adopted.
func (s *Service) ResetAll(ctx context.Context) error {
	if !s.IsPassPhraseValidated() {
		return notValidated("reset accounts")
	}
	return s.lock.WithCriticalSection(func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		if err := s.store.reset(ctx); err != nil {
			return services.Wrap(services.ErrExecution, component, "reset accounts", "", err)
		}
		s.clearLocked()
		s.logger.Info("vault reset", logging.String(logging.FieldEventType, "vault_reset"))
		return nil
	})
}

// ListGridAccounts returns the stored accounts with passwords still encrypted.
func (s *Service) ListGridAccounts(ctx context.Context) ([]*GridAccount, error) {
	accounts, err := s.store.List(ctx)
	if err != nil {
		return nil, services.Wrap(services.ErrExecution, component, "list accounts", "", err)
	}
	return accounts, nil
}

// FindGridAccount returns the account or nil when absent.
func (s *Service) FindGridAccount(ctx context.Context, id int64) (*GridAccount, error) {
	account, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, services.Wrap(services.ErrExecution, component, "find account", "", err)
	}
	return account, nil
}

// AccountToCredential decrypts account under the current key material.
func (s *Service) AccountToCredential(account *GridAccount) (*Credential, error) {
	if account == nil {
		return nil, services.Validation(component, "decrypt account", "account is required")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cipher == nil {
		return nil, notValidated("decrypt account")
	}
	plain, err := s.cipher.Decrypt(account.Password)
	if err != nil {
		return nil, services.Wrap(services.ErrExecution, component, "decrypt account", account.Key(), err)
	}
	return &Credential{
		AccountID:       account.ID,
		Host:            account.Host,
		Port:            account.Port,
		Zone:            account.Zone,
		UserName:        account.UserName,
		Password:        plain,
		DefaultResource: account.DefaultResource,
		HomePath:        account.HomePath,
		AuthScheme:      account.AuthScheme,
	}, nil
}

// CredentialFor loads and decrypts the account with the given id.
func (s *Service) CredentialFor(ctx context.Context, accountID int64) (*Credential, error) {
	account, err := s.FindGridAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, services.Wrap(services.ErrNotFound, component, "resolve credential", "account no longer exists", nil)
	}
	return s.AccountToCredential(account)
}

func (s *Service) cacheLocked(phrase string, salt []byte) error {
	derived, err := deriveCipher(phrase, salt, s.params)
	if err != nil {
		s.clearLocked()
		return services.Wrap(services.ErrExecution, component, "validate pass phrase", "derive key", err)
	}
	if s.cipher != nil {
		s.cipher.wipe()
	}
	s.phrase, s.cipher = phrase, derived
	return nil
}

func (s *Service) clearLocked() {
	if s.cipher != nil {
		s.cipher.wipe()
	}
	s.phrase, s.cipher = "", nil
}

func notValidated(operation string) error {
	return services.Wrap(services.ErrPassPhraseNotValidated, component, operation, "validate the pass phrase first", nil)
}
