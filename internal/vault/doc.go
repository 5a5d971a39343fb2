// Package vault stores grid accounts with passwords encrypted under a
// user-supplied pass phrase.
//
// Only an argon2id hash of the pass phrase is persisted (the KeyStore row).
// The first phrase ever validated is adopted; afterwards a mismatch fails with
// services.ErrPassPhraseInvalid and clears the cached key material. Operations
// that could pull an account out from under a running job (delete, reset,
// pass-phrase rotation) take the queue lock and fail fast with
// services.ErrConveyorBusy when the conveyor is not idle.
package vault
