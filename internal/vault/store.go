package vault

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"

	"conveyor/internal/database"
)

const keyStoreID = "pass_phrase"

const accountColumns = "id, host, port, zone, user_name, password_cipher, default_resource, home_path, auth_scheme, comment, created_at, updated_at"

// Store persists grid accounts and the KeyStore row.
type Store struct {
	db *database.DB
}

// NewStore binds a Store to an open database.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

func (s *Store) keyStore(ctx context.Context) (*keyStoreEntry, error) {
	var (
		hash, salt         string
		createdRaw, update string
	)
	err := s.db.QueryRow(ctx,
		"SELECT phrase_hash, kdf_salt, created_at, updated_at FROM key_store WHERE id = ?", keyStoreID,
	).Scan(&hash, &salt, &createdRaw, &update)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read key store: %w", err)
	}
	rawSalt, err := base64.StdEncoding.DecodeString(salt)
	if err != nil {
		return nil, fmt.Errorf("decode key store salt: %w", err)
	}
	entry := &keyStoreEntry{PhraseHash: hash, KDFSalt: rawSalt}
	if t, err := database.ParseTime(createdRaw); err == nil {
		entry.CreatedAt = t
	}
	if t, err := database.ParseTime(update); err == nil {
		entry.UpdatedAt = t
	}
	return entry, nil
}

func putKeyStore(ctx context.Context, tx *sql.Tx, hash string, salt []byte) error {
	now := database.Now()
	_, err := tx.ExecContext(ctx, `INSERT INTO key_store (id, phrase_hash, kdf_salt, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET phrase_hash = excluded.phrase_hash, kdf_salt = excluded.kdf_salt, updated_at = excluded.updated_at`,
		keyStoreID, hash, base64.StdEncoding.EncodeToString(salt), now, now)
	if err != nil {
		return fmt.Errorf("save key store: %w", err)
	}
	return nil
}

func (s *Store) saveKeyStore(ctx context.Context, hash string, salt []byte) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		return putKeyStore(ctx, tx, hash, salt)
	})
}

// List returns every account ordered by id.
func (s *Store) List(ctx context.Context) ([]*GridAccount, error) {
	rows, err := s.db.Query(ctx, "SELECT "+accountColumns+" FROM grid_accounts ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*GridAccount
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

// GetByID returns the account or nil when absent.
func (s *Store) GetByID(ctx context.Context, id int64) (*GridAccount, error) {
	row := s.db.QueryRow(ctx, "SELECT "+accountColumns+" FROM grid_accounts WHERE id = ?", id)
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return account, err
}

// FindByIdentity looks an account up by its unique host/port/zone/user tuple.
func (s *Store) FindByIdentity(ctx context.Context, host string, port int, zone, user string) (*GridAccount, error) {
	row := s.db.QueryRow(ctx,
		"SELECT "+accountColumns+" FROM grid_accounts WHERE host = ? AND port = ? AND zone = ? AND user_name = ?",
		host, port, zone, user)
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return account, err
}

// Save inserts or updates account, assigning ID and timestamps.
func (s *Store) Save(ctx context.Context, account *GridAccount) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		return saveAccount(ctx, tx, account)
	})
}

func saveAccount(ctx context.Context, tx *sql.Tx, account *GridAccount) error {
	now := database.Now()
	if account.ID == 0 {
		res, err := tx.ExecContext(ctx, `INSERT INTO grid_accounts
			(host, port, zone, user_name, password_cipher, default_resource, home_path, auth_scheme, comment, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			account.Host, account.Port, account.Zone, account.UserName, account.Password,
			database.NullableString(account.DefaultResource), database.NullableString(account.HomePath),
			string(account.AuthScheme), database.NullableString(account.Comment), now, now)
		if err != nil {
			return fmt.Errorf("insert account: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("account id: %w", err)
		}
		account.ID = id
		ts, _ := database.ParseTime(now)
		account.CreatedAt, account.UpdatedAt = ts, ts
		return nil
	}
	_, err := tx.ExecContext(ctx, `UPDATE grid_accounts SET host = ?, port = ?, zone = ?, user_name = ?,
		password_cipher = ?, default_resource = ?, home_path = ?, auth_scheme = ?, comment = ?, updated_at = ?
		WHERE id = ?`,
		account.Host, account.Port, account.Zone, account.UserName, account.Password,
		database.NullableString(account.DefaultResource), database.NullableString(account.HomePath),
		string(account.AuthScheme), database.NullableString(account.Comment), now, account.ID)
	if err != nil {
		return fmt.Errorf("update account %d: %w", account.ID, err)
	}
	account.UpdatedAt, _ = database.ParseTime(now)
	return nil
}

// Delete removes an account; transfers and synchronizations referencing it
// cascade. Deleting an absent account is not an error.
func (s *Store) Delete(ctx context.Context, id int64) error {
	if _, err := s.db.Exec(ctx, "DELETE FROM grid_accounts WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete account %d: %w", id, err)
	}
	return nil
}

// rotate replaces the KeyStore row and every account password in one transaction.
func (s *Store) rotate(ctx context.Context, hash string, salt []byte, accounts []*GridAccount) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := putKeyStore(ctx, tx, hash, salt); err != nil {
			return err
		}
		for _, account := range accounts {
			if err := saveAccount(ctx, tx, account); err != nil {
				return err
			}
		}
		return nil
	})
}

// reset deletes every account and the KeyStore row.
func (s *Store) reset(ctx context.Context) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM grid_accounts"); err != nil {
			return fmt.Errorf("delete accounts: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM key_store"); err != nil {
			return fmt.Errorf("delete key store: %w", err)
		}
		return nil
	})
}

func scanAccount(scanner database.Scanner) (*GridAccount, error) {
	var (
		account                            GridAccount
		defaultResource, homePath, comment sql.NullString
		authScheme, createdRaw, updatedRaw string
	)
	if err := scanner.Scan(
		&account.ID,
		&account.Host,
		&account.Port,
		&account.Zone,
		&account.UserName,
		&account.Password,
		&defaultResource,
		&homePath,
		&authScheme,
		&comment,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	account.DefaultResource = defaultResource.String
	account.HomePath = homePath.String
	account.Comment = comment.String
	account.AuthScheme = AuthScheme(authScheme)
	if t, err := database.ParseTime(createdRaw); err == nil {
		account.CreatedAt = t
	}
	if t, err := database.ParseTime(updatedRaw); err == nil {
		account.UpdatedAt = t
	}
	return &account, nil
}
