package panel

import (
	"context"
	"crypto/aes"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

const (
	inventoryDriverNameConstant           = "mysql"
	inventoryQueryConstant                = "select hostname, username, password, internal_ip from plesks where hostname = ?"
	inventoryEntityDescriptionConstant    = "inventory host"
	inventoryOperationConstant            = OperationName("InventoryLookup")
	inventoryDSNFieldNameConstant         = "inventory dsn"
	inventoryKeyFieldNameConstant         = "inventory key"
	inventoryKeyLengthMessageConstant     = "must be 16, 24, or 32 bytes"
	inventoryOpenErrorTemplateConstant    = "open panel inventory: %w"
	inventoryQueryErrorTemplateConstant   = "query panel inventory for %s: %w"
	inventoryDecryptErrorTemplateConstant = "decrypt panel inventory password for %s: %w"
	inventoryIncompleteMessageConstant    = "panel inventory record lacks login, password, or internal address"
	ciphertextTooShortMessageConstant     = "ciphertext shorter than initialization vector"
	inventoryLookupLogMessageConstant     = "panel inventory lookup"
	logFieldHostnameConstant              = "hostname"
	logFieldMatchesConstant               = "matches"
)

// ErrInventoryRecordIncomplete indicates an inventory row missing a required value.
var ErrInventoryRecordIncomplete = errors.New(inventoryIncompleteMessageConstant)

var errCiphertextTooShort = errors.New(ciphertextTooShortMessageConstant)

// InventoryRecord is a decrypted panel inventory row.
type InventoryRecord struct {
	Hostname   string
	Login      string
	Password   string
	InternalIP string
}

// EncryptedInventoryRecord is an inventory row as stored, with an encrypted password.
type EncryptedInventoryRecord struct {
	Hostname          string
	Login             string
	EncryptedPassword string
	InternalIP        string
}

// InventoryRecordSource fetches stored rows for a hostname.
type InventoryRecordSource interface {
	FetchRecords(executionContext context.Context, hostname string) ([]EncryptedInventoryRecord, error)
}

// SQLInventoryRecordSource reads rows from the inventory database.
type SQLInventoryRecordSource struct {
	database *sql.DB
}

// NewSQLInventoryRecordSource wraps an open database handle.
func NewSQLInventoryRecordSource(database *sql.DB) *SQLInventoryRecordSource {
	return &SQLInventoryRecordSource{database: database}
}

// FetchRecords returns every row whose hostname matches.
func (source *SQLInventoryRecordSource) FetchRecords(executionContext context.Context, hostname string) ([]EncryptedInventoryRecord, error) {
	rows, queryError := source.database.QueryContext(executionContext, inventoryQueryConstant, hostname)
	if queryError != nil {
		return nil, queryError
	}
	defer rows.Close()

	var records []EncryptedInventoryRecord
	for rows.Next() {
		var login, password, internalIP sql.NullString
		var record EncryptedInventoryRecord
		if scanError := rows.Scan(&record.Hostname, &login, &password, &internalIP); scanError != nil {
			return nil, scanError
		}
		record.Login = login.String
		record.EncryptedPassword = password.String
		record.InternalIP = internalIP.String
		records = append(records, record)
	}
	return records, rows.Err()
}

// Inventory resolves panel credentials from the inventory database.
type Inventory struct {
	source   InventoryRecordSource
	key      []byte
	logger   *zap.Logger
	database *sql.DB
}

// NewInventory constructs an Inventory over a record source.
func NewInventory(source InventoryRecordSource, key []byte, logger *zap.Logger) (*Inventory, error) {
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, InvalidInputError{FieldName: inventoryKeyFieldNameConstant, Message: inventoryKeyLengthMessageConstant}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Inventory{source: source, key: key, logger: logger}, nil
}

// OpenInventory connects to the inventory database identified by a go-sql-driver DSN.
func OpenInventory(executionContext context.Context, dataSourceName string, key []byte, logger *zap.Logger) (*Inventory, error) {
	if len(strings.TrimSpace(dataSourceName)) == 0 {
		return nil, InvalidInputError{FieldName: inventoryDSNFieldNameConstant, Message: requiredValueMessageConstant}
	}
	if _, parseError := mysql.ParseDSN(dataSourceName); parseError != nil {
		return nil, InvalidInputError{FieldName: inventoryDSNFieldNameConstant, Message: parseError.Error()}
	}

	database, openError := sql.Open(inventoryDriverNameConstant, dataSourceName)
	if openError != nil {
		return nil, fmt.Errorf(inventoryOpenErrorTemplateConstant, openError)
	}
	if pingError := database.PingContext(executionContext); pingError != nil {
		database.Close()
		return nil, fmt.Errorf(inventoryOpenErrorTemplateConstant, pingError)
	}

	inventory, inventoryError := NewInventory(NewSQLInventoryRecordSource(database), key, logger)
	if inventoryError != nil {
		database.Close()
		return nil, inventoryError
	}
	inventory.database = database
	return inventory, nil
}

// Close releases the database handle opened by OpenInventory.
func (inventory *Inventory) Close() error {
	if inventory.database == nil {
		return nil
	}
	return inventory.database.Close()
}

// Lookup returns the decrypted record for hostname. Exactly one row must match.
func (inventory *Inventory) Lookup(executionContext context.Context, hostname string) (InventoryRecord, error) {
	records, fetchError := inventory.source.FetchRecords(executionContext, hostname)
	if fetchError != nil {
		return InventoryRecord{}, fmt.Errorf(inventoryQueryErrorTemplateConstant, hostname, fetchError)
	}
	inventory.logger.Debug(inventoryLookupLogMessageConstant, zap.String(logFieldHostnameConstant, hostname), zap.Int(logFieldMatchesConstant, len(records)))
	if len(records) != 1 {
		return InventoryRecord{}, EntityNotFoundError{Operation: inventoryOperationConstant, Entity: inventoryEntityDescriptionConstant}
	}

	stored := records[0]
	password, decryptError := DecryptInventoryPassword(stored.EncryptedPassword, inventory.key)
	if decryptError != nil {
		return InventoryRecord{}, fmt.Errorf(inventoryDecryptErrorTemplateConstant, hostname, decryptError)
	}

	record := InventoryRecord{Hostname: stored.Hostname, Login: stored.Login, Password: password, InternalIP: stored.InternalIP}
	if len(record.Login) == 0 || len(record.Password) == 0 || len(record.InternalIP) == 0 {
		return InventoryRecord{}, ErrInventoryRecordIncomplete
	}
	return record, nil
}

// DecryptInventoryPassword decodes a base64 value whose first 16 bytes are the IV and whose remainder is
// AES ciphertext in 8-bit cipher feedback mode.
func DecryptInventoryPassword(encoded string, key []byte) (string, error) {
	decoded, decodeError := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if decodeError != nil {
		return "", decodeError
	}
	if len(decoded) < aes.BlockSize {
		return "", errCiphertextTooShort
	}

	block, cipherError := aes.NewCipher(key)
	if cipherError != nil {
		return "", cipherError
	}

	register := append([]byte(nil), decoded[:aes.BlockSize]...)
	ciphertext := decoded[aes.BlockSize:]
	keystream := make([]byte, aes.BlockSize)
	plaintext := make([]byte, len(ciphertext))
	for index, cipherByte := range ciphertext {
		block.Encrypt(keystream, register)
		plaintext[index] = cipherByte ^ keystream[0]
		copy(register, register[1:])
		register[aes.BlockSize-1] = cipherByte
	}
	return string(plaintext), nil
}
