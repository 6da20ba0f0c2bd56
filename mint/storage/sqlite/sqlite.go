// Package sqlite implements storage.MintDB on top of SQLite, embedding its
// own golang-migrate migrations.
package sqlite

import (
	"database/sql"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/mattn/go-sqlite3"
	"github.com/satmint/mintcore/cashu"
	"github.com/satmint/mintcore/cashu/nuts/nut04"
	"github.com/satmint/mintcore/cashu/nuts/nut05"
	"github.com/satmint/mintcore/crypto"
	"github.com/satmint/mintcore/mint/storage"
)

//go:embed migrations
var migrations embed.FS

type SQLiteDB struct {
	db *sql.DB
}

// create a temporary directory with the migration files.
// migration files are embedded with go:embed. These are then read
// and copied to a temporary directory.
// This is needed to pass the directory to migrate.New
func migrationsDir() (string, error) {
	tempDir, err := os.MkdirTemp("", "migrations")
	if err != nil {
		return "", err
	}

	migrationFiles, err := migrations.ReadDir("migrations")
	if err != nil {
		return "", err
	}

	for _, file := range migrationFiles {
		filePath := filepath.Join(tempDir, file.Name())

		migrationFilePath := filepath.Join("migrations", file.Name())
		migrationFile, err := migrations.Open(migrationFilePath)
		if err != nil {
			return "", err
		}
		defer migrationFile.Close()

		destFile, err := os.Create(filePath)
		if err != nil {
			return "", err
		}
		defer destFile.Close()

		_, err = io.Copy(destFile, migrationFile)
		if err != nil {
			return "", err
		}
	}

	return tempDir, nil
}

func InitSQLite(path string) (*SQLiteDB, error) {
	dbpath := filepath.Join(path, "mint.sqlite.db")
	db, err := sql.Open("sqlite3", dbpath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	tempMigrationsDir, err := migrationsDir()
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tempMigrationsDir)

	m, err := migrate.New(fmt.Sprintf("file://%s", tempMigrationsDir), fmt.Sprintf("sqlite3://%s", dbpath))
	if err != nil {
		return nil, err
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &SQLiteDB{db: db}, nil
}

func (sqlite *SQLiteDB) Close() error {
	return sqlite.db.Close()
}

func (sqlite *SQLiteDB) SaveKeyset(keyset storage.DBKeyset) error {
	tx, err := sqlite.db.Begin()
	if err != nil {
		return err
	}

	_, err = tx.Exec(
		"INSERT INTO keysets (id, unit, active, input_fee_ppk, created_at) VALUES (?, ?, ?, ?, ?)",
		keyset.Id, keyset.Unit, keyset.Active, keyset.InputFeePpk, keyset.CreatedAt,
	)
	if err != nil {
		tx.Rollback()
		return err
	}

	stmt, err := tx.Prepare("INSERT INTO keyset_keys (keyset_id, amount, privkey) VALUES (?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for amount, key := range keyset.Keys {
		if _, err := stmt.Exec(keyset.Id, amount, key.Serialize()); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

func (sqlite *SQLiteDB) GetKeysets() ([]storage.DBKeyset, error) {
	rows, err := sqlite.db.Query("SELECT id, unit, active, input_fee_ppk, created_at FROM keysets")
	if err != nil {
		return nil, err
	}

	keysetsById := make(map[string]*storage.DBKeyset)
	order := make([]string, 0)
	for rows.Next() {
		var keyset storage.DBKeyset
		if err := rows.Scan(&keyset.Id, &keyset.Unit, &keyset.Active, &keyset.InputFeePpk, &keyset.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		keyset.Keys = make(map[uint64]*secp256k1.PrivateKey)
		keysetsById[keyset.Id] = &keyset
		order = append(order, keyset.Id)
	}
	rows.Close()

	keyRows, err := sqlite.db.Query("SELECT keyset_id, amount, privkey FROM keyset_keys")
	if err != nil {
		return nil, err
	}
	defer keyRows.Close()

	for keyRows.Next() {
		var keysetId string
		var amount uint64
		var privkeyBytes []byte
		if err := keyRows.Scan(&keysetId, &amount, &privkeyBytes); err != nil {
			return nil, err
		}
		keyset, ok := keysetsById[keysetId]
		if !ok {
			continue
		}
		keyset.Keys[amount] = secp256k1.PrivKeyFromBytes(privkeyBytes)
	}

	keysets := make([]storage.DBKeyset, 0, len(order))
	for _, id := range order {
		keysets = append(keysets, *keysetsById[id])
	}
	return keysets, nil
}

func (sqlite *SQLiteDB) UpdateKeysetActive(id string, active bool) error {
	result, err := sqlite.db.Exec("UPDATE keysets SET active = ? WHERE id = ?", active, id)
	if err != nil {
		return err
	}

	count, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if count != 1 {
		return errors.New("keyset was not updated")
	}
	return nil
}

func (sqlite *SQLiteDB) SaveSeed(seed []byte) error {
	_, err := sqlite.db.Exec("INSERT INTO mint_seed (id, seed) VALUES (1, ?)", seed)
	return err
}

func (sqlite *SQLiteDB) GetSeed() ([]byte, error) {
	var seed []byte
	err := sqlite.db.QueryRow("SELECT seed FROM mint_seed WHERE id = 1").Scan(&seed)
	if err != nil {
		return nil, err
	}
	return seed, nil
}

func (sqlite *SQLiteDB) SaveProofs(proofs cashu.Proofs) error {
	tx, err := sqlite.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare("INSERT INTO proofs (y, amount, keyset_id, secret, c, witness) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, proof := range proofs {
		Y, err := crypto.HashToCurve([]byte(proof.Secret))
		if err != nil {
			tx.Rollback()
			return err
		}
		Yhex := hex.EncodeToString(Y.SerializeCompressed())

		if _, err := stmt.Exec(Yhex, proof.Amount, proof.Id, proof.Secret, proof.C, proof.Witness); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

func (sqlite *SQLiteDB) GetProofsUsed(Ys []string) ([]storage.DBProof, error) {
	if len(Ys) == 0 {
		return nil, nil
	}

	proofs := []storage.DBProof{}
	query := `SELECT y, amount, keyset_id, secret, c, witness FROM proofs WHERE y in (?` + strings.Repeat(",?", len(Ys)-1) + `)`

	args := make([]any, len(Ys))
	for i, y := range Ys {
		args[i] = y
	}

	rows, err := sqlite.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var proof storage.DBProof
		var witness sql.NullString

		if err := rows.Scan(&proof.Y, &proof.Amount, &proof.Id, &proof.Secret, &proof.C, &witness); err != nil {
			return nil, err
		}
		if witness.Valid {
			proof.Witness = witness.String
		}

		proofs = append(proofs, proof)
	}

	return proofs, nil
}

func (sqlite *SQLiteDB) AddPendingProofs(proofs cashu.Proofs, meltQuoteId string, expiresAt int64) error {
	tx, err := sqlite.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare("INSERT INTO pending_proofs (y, amount, keyset_id, secret, c, witness, melt_quote_id, expires_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, proof := range proofs {
		Y, err := crypto.HashToCurve([]byte(proof.Secret))
		if err != nil {
			tx.Rollback()
			return err
		}
		Yhex := hex.EncodeToString(Y.SerializeCompressed())

		if _, err := stmt.Exec(Yhex, proof.Amount, proof.Id, proof.Secret, proof.C, proof.Witness, meltQuoteId, expiresAt); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

func (sqlite *SQLiteDB) GetPendingProofs(Ys []string) ([]storage.DBProof, error) {
	if len(Ys) == 0 {
		return nil, nil
	}

	proofs := []storage.DBProof{}
	query := `SELECT y, amount, keyset_id, secret, c, witness, melt_quote_id, expires_at FROM pending_proofs WHERE y in (?` + strings.Repeat(",?", len(Ys)-1) + `)`

	args := make([]any, len(Ys))
	for i, y := range Ys {
		args[i] = y
	}

	rows, err := sqlite.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var proof storage.DBProof
		var witness sql.NullString

		if err := rows.Scan(&proof.Y, &proof.Amount, &proof.Id, &proof.Secret, &proof.C, &witness, &proof.MeltQuoteId, &proof.ExpiresAt); err != nil {
			return nil, err
		}
		if witness.Valid {
			proof.Witness = witness.String
		}

		proofs = append(proofs, proof)
	}

	return proofs, nil
}

func (sqlite *SQLiteDB) MarkMeltQuotePending(quoteId string, proofs cashu.Proofs, expiresAt int64) error {
	tx, err := sqlite.db.Begin()
	if err != nil {
		return err
	}

	result, err := tx.Exec(
		"UPDATE melt_quotes SET state = ?, preimage = ?, fee_paid = ? WHERE id = ?",
		nut05.Pending.String(), "", 0, quoteId,
	)
	if err != nil {
		tx.Rollback()
		return err
	}
	count, err := result.RowsAffected()
	if err != nil {
		tx.Rollback()
		return err
	}
	if count != 1 {
		tx.Rollback()
		return errors.New("melt quote was not updated")
	}

	stmt, err := tx.Prepare("INSERT INTO pending_proofs (y, amount, keyset_id, secret, c, witness, melt_quote_id, expires_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, proof := range proofs {
		Y, err := crypto.HashToCurve([]byte(proof.Secret))
		if err != nil {
			tx.Rollback()
			return err
		}
		Yhex := hex.EncodeToString(Y.SerializeCompressed())

		if _, err := stmt.Exec(Yhex, proof.Amount, proof.Id, proof.Secret, proof.C, proof.Witness, quoteId, expiresAt); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

func (sqlite *SQLiteDB) GetPendingProofsByQuote(quoteId string) ([]storage.DBProof, error) {
	proofs := []storage.DBProof{}
	query := `SELECT y, amount, keyset_id, secret, c, witness, expires_at FROM pending_proofs WHERE melt_quote_id = ?`

	rows, err := sqlite.db.Query(query, quoteId)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var proof storage.DBProof
		var witness sql.NullString

		if err := rows.Scan(&proof.Y, &proof.Amount, &proof.Id, &proof.Secret, &proof.C, &witness, &proof.ExpiresAt); err != nil {
			return nil, err
		}
		if witness.Valid {
			proof.Witness = witness.String
		}
		proof.MeltQuoteId = quoteId

		proofs = append(proofs, proof)
	}

	return proofs, nil
}

func (sqlite *SQLiteDB) RemovePendingProofs(Ys []string) error {
	if len(Ys) == 0 {
		return nil
	}

	tx, err := sqlite.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare("DELETE FROM pending_proofs WHERE y = ?")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, y := range Ys {
		if _, err := stmt.Exec(y); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

func (sqlite *SQLiteDB) PromotePendingToSpent(Ys []string, proofs cashu.Proofs) error {
	tx, err := sqlite.db.Begin()
	if err != nil {
		return err
	}

	if len(Ys) > 0 {
		deleteStmt, err := tx.Prepare("DELETE FROM pending_proofs WHERE y = ?")
		if err != nil {
			tx.Rollback()
			return err
		}
		for _, y := range Ys {
			if _, err := deleteStmt.Exec(y); err != nil {
				deleteStmt.Close()
				tx.Rollback()
				return err
			}
		}
		deleteStmt.Close()
	}

	insertStmt, err := tx.Prepare("INSERT INTO proofs (y, amount, keyset_id, secret, c, witness) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return err
	}
	defer insertStmt.Close()

	for _, proof := range proofs {
		Y, err := crypto.HashToCurve([]byte(proof.Secret))
		if err != nil {
			tx.Rollback()
			return err
		}
		Yhex := hex.EncodeToString(Y.SerializeCompressed())

		if _, err := insertStmt.Exec(Yhex, proof.Amount, proof.Id, proof.Secret, proof.C, proof.Witness); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

func (sqlite *SQLiteDB) SweepExpiredPending(now int64) (int, error) {
	result, err := sqlite.db.Exec("DELETE FROM pending_proofs WHERE expires_at <= ?", now)
	if err != nil {
		return 0, err
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

func (sqlite *SQLiteDB) SaveMintQuote(mintQuote storage.MintQuote) error {
	_, err := sqlite.db.Exec(
		`INSERT INTO mint_quotes (id, payment_request, payment_hash, amount, state, expiry, issued_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		mintQuote.Id,
		mintQuote.PaymentRequest,
		mintQuote.PaymentHash,
		mintQuote.Amount,
		mintQuote.State.String(),
		mintQuote.Expiry,
		sql.NullInt64{Int64: mintQuote.IssuedAt, Valid: mintQuote.IssuedAt != 0},
	)

	return err
}

func scanMintQuote(row *sql.Row) (storage.MintQuote, error) {
	var mintQuote storage.MintQuote
	var state string
	var issuedAt sql.NullInt64

	err := row.Scan(
		&mintQuote.Id,
		&mintQuote.PaymentRequest,
		&mintQuote.PaymentHash,
		&mintQuote.Amount,
		&state,
		&mintQuote.Expiry,
		&issuedAt,
	)
	if err != nil {
		return storage.MintQuote{}, err
	}
	mintQuote.State = nut04.StringToState(state)
	if issuedAt.Valid {
		mintQuote.IssuedAt = issuedAt.Int64
	}

	return mintQuote, nil
}

func (sqlite *SQLiteDB) GetMintQuote(quoteId string) (storage.MintQuote, error) {
	row := sqlite.db.QueryRow(
		"SELECT id, payment_request, payment_hash, amount, state, expiry, issued_at FROM mint_quotes WHERE id = ?",
		quoteId,
	)
	return scanMintQuote(row)
}

func (sqlite *SQLiteDB) GetMintQuoteByPaymentHash(paymentHash string) (storage.MintQuote, error) {
	row := sqlite.db.QueryRow(
		"SELECT id, payment_request, payment_hash, amount, state, expiry, issued_at FROM mint_quotes WHERE payment_hash = ?",
		paymentHash,
	)
	return scanMintQuote(row)
}

func (sqlite *SQLiteDB) UpdateMintQuoteState(quoteId string, state nut04.State) error {
	var issuedAt any
	if state == nut04.Issued {
		issuedAt = time.Now().Unix()
	}

	result, err := sqlite.db.Exec(
		"UPDATE mint_quotes SET state = ?, issued_at = COALESCE(?, issued_at) WHERE id = ?",
		state.String(), issuedAt, quoteId,
	)
	if err != nil {
		return err
	}

	count, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if count != 1 {
		return errors.New("mint quote was not updated")
	}
	return nil
}

func (sqlite *SQLiteDB) SaveMeltQuote(meltQuote storage.MeltQuote) error {
	_, err := sqlite.db.Exec(`
		INSERT INTO melt_quotes
		(id, request, payment_hash, amount, fee_reserve, fee_paid, state, expiry, preimage, is_mpp, amount_msat)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		meltQuote.Id,
		meltQuote.InvoiceRequest,
		meltQuote.PaymentHash,
		meltQuote.Amount,
		meltQuote.FeeReserve,
		meltQuote.FeePaid,
		meltQuote.State.String(),
		meltQuote.Expiry,
		meltQuote.Preimage,
		meltQuote.IsMpp,
		meltQuote.AmountMsat,
	)

	return err
}

func scanMeltQuote(row *sql.Row) (storage.MeltQuote, error) {
	var meltQuote storage.MeltQuote
	var state string
	var preimage sql.NullString
	var isMpp sql.NullBool
	var amountMsat sql.NullInt64

	err := row.Scan(
		&meltQuote.Id,
		&meltQuote.InvoiceRequest,
		&meltQuote.PaymentHash,
		&meltQuote.Amount,
		&meltQuote.FeeReserve,
		&meltQuote.FeePaid,
		&state,
		&meltQuote.Expiry,
		&preimage,
		&isMpp,
		&amountMsat,
	)
	if err != nil {
		return storage.MeltQuote{}, err
	}
	meltQuote.State = nut05.StringToState(state)
	if preimage.Valid {
		meltQuote.Preimage = preimage.String
	}
	if isMpp.Valid {
		meltQuote.IsMpp = isMpp.Bool
	}
	if amountMsat.Valid {
		meltQuote.AmountMsat = uint64(amountMsat.Int64)
	}

	return meltQuote, nil
}

func (sqlite *SQLiteDB) GetMeltQuote(quoteId string) (storage.MeltQuote, error) {
	row := sqlite.db.QueryRow(
		`SELECT id, request, payment_hash, amount, fee_reserve, fee_paid, state, expiry, preimage, is_mpp, amount_msat
		FROM melt_quotes WHERE id = ?`, quoteId,
	)
	return scanMeltQuote(row)
}

func (sqlite *SQLiteDB) GetMeltQuoteByPaymentRequest(invoice string) (*storage.MeltQuote, error) {
	row := sqlite.db.QueryRow(
		`SELECT id, request, payment_hash, amount, fee_reserve, fee_paid, state, expiry, preimage, is_mpp, amount_msat
		FROM melt_quotes WHERE request = ?`, invoice,
	)
	quote, err := scanMeltQuote(row)
	if err != nil {
		return nil, err
	}
	return &quote, nil
}

func (sqlite *SQLiteDB) GetPendingMeltQuotes() ([]storage.MeltQuote, error) {
	rows, err := sqlite.db.Query(
		`SELECT id, request, payment_hash, amount, fee_reserve, fee_paid, state, expiry, preimage, is_mpp, amount_msat
		FROM melt_quotes WHERE state = ?`, nut05.Pending.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var quotes []storage.MeltQuote
	for rows.Next() {
		var meltQuote storage.MeltQuote
		var state string
		var preimage sql.NullString
		var isMpp sql.NullBool
		var amountMsat sql.NullInt64

		if err := rows.Scan(
			&meltQuote.Id,
			&meltQuote.InvoiceRequest,
			&meltQuote.PaymentHash,
			&meltQuote.Amount,
			&meltQuote.FeeReserve,
			&meltQuote.FeePaid,
			&state,
			&meltQuote.Expiry,
			&preimage,
			&isMpp,
			&amountMsat,
		); err != nil {
			return nil, err
		}
		meltQuote.State = nut05.StringToState(state)
		if preimage.Valid {
			meltQuote.Preimage = preimage.String
		}
		if isMpp.Valid {
			meltQuote.IsMpp = isMpp.Bool
		}
		if amountMsat.Valid {
			meltQuote.AmountMsat = uint64(amountMsat.Int64)
		}
		quotes = append(quotes, meltQuote)
	}
	return quotes, rows.Err()
}

func (sqlite *SQLiteDB) UpdateMeltQuote(quoteId, preimage string, feePaid uint64, state nut05.State) error {
	result, err := sqlite.db.Exec(
		"UPDATE melt_quotes SET state = ?, preimage = ?, fee_paid = ? WHERE id = ?",
		state.String(), preimage, feePaid, quoteId,
	)
	if err != nil {
		return err
	}

	count, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if count != 1 {
		return errors.New("melt quote was not updated")
	}
	return nil
}

func (sqlite *SQLiteDB) SaveBlindSignatures(B_s []string, blindSignatures cashu.BlindedSignatures) error {
	tx, err := sqlite.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare("INSERT INTO blind_signatures (b_, c_, keyset_id, amount, e, s) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, sig := range blindSignatures {
		var e, s any
		if sig.DLEQ != nil {
			e, s = sig.DLEQ.E, sig.DLEQ.S
		}
		if _, err := stmt.Exec(B_s[i], sig.C_, sig.Id, sig.Amount, e, s); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

func scanBlindSignature(row interface {
	Scan(dest ...any) error
}) (cashu.BlindedSignature, error) {
	var signature cashu.BlindedSignature
	var e, s sql.NullString

	if err := row.Scan(&signature.Amount, &signature.C_, &signature.Id, &e, &s); err != nil {
		return cashu.BlindedSignature{}, err
	}

	if e.Valid && s.Valid {
		signature.DLEQ = &cashu.DLEQProof{E: e.String, S: s.String}
	}

	return signature, nil
}

func (sqlite *SQLiteDB) GetBlindSignature(B_ string) (cashu.BlindedSignature, error) {
	row := sqlite.db.QueryRow("SELECT amount, c_, keyset_id, e, s FROM blind_signatures WHERE b_ = ?", B_)
	return scanBlindSignature(row)
}

func (sqlite *SQLiteDB) GetBlindSignatures(B_s []string) (cashu.BlindedSignatures, error) {
	if len(B_s) == 0 {
		return nil, nil
	}

	signatures := cashu.BlindedSignatures{}
	query := `SELECT amount, c_, keyset_id, e, s FROM blind_signatures WHERE b_ in (?` + strings.Repeat(",?", len(B_s)-1) + `)`

	args := make([]any, len(B_s))
	for i, B_ := range B_s {
		args[i] = B_
	}

	rows, err := sqlite.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		signature, err := scanBlindSignature(rows)
		if err != nil {
			return nil, err
		}
		signatures = append(signatures, signature)
	}

	return signatures, nil
}

func (sqlite *SQLiteDB) GetIssuedEcash() (map[string]uint64, error) {
	issued := make(map[string]uint64)

	rows, err := sqlite.db.Query("SELECT keyset_id, amount FROM total_issued")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var keysetId string
		var amount uint64
		if err := rows.Scan(&keysetId, &amount); err != nil {
			return nil, err
		}
		issued[keysetId] = amount
	}

	return issued, nil
}

func (sqlite *SQLiteDB) GetRedeemedEcash() (map[string]uint64, error) {
	redeemed := make(map[string]uint64)

	rows, err := sqlite.db.Query("SELECT keyset_id, amount FROM total_redeemed")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var keysetId string
		var amount uint64
		if err := rows.Scan(&keysetId, &amount); err != nil {
			return nil, err
		}
		redeemed[keysetId] = amount
	}

	return redeemed, nil
}
