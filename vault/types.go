package vault

import (
	"strings"
	"time"
)

// ItemKind is a closed enum of the secret types chamber understands. The
// numeric value is persisted in the items.kind column and folded into the
// AEAD associated data, so reordering these constants would silently change
// the authentication tag of every existing record — never renumber them.
type ItemKind int

const (
	KindPassword ItemKind = iota + 1
	KindAPIKey
	KindEnvVar
	KindSSHKey
	KindCertificate
	KindDatabase
	KindNote
)

// String renders the kind the way the CLI and diagnostics log print it.
func (k ItemKind) String() string {
	switch k {
	case KindPassword:
		return "password"
	case KindAPIKey:
		return "apikey"
	case KindEnvVar:
		return "envvar"
	case KindSSHKey:
		return "sshkey"
	case KindCertificate:
		return "certificate"
	case KindDatabase:
		return "database"
	case KindNote:
		return "note"
	default:
		return "unknown"
	}
}

// tag returns the single byte folded into an item's AEAD associated data.
func (k ItemKind) tag() byte {
	return byte(k)
}

// validKind reports whether k is one of the closed enum's named values.
func validKind(k ItemKind) bool {
	return k >= KindPassword && k <= KindNote
}

// MaxNameBytes and MaxValueBytes bound item fields; values above these are
// rejected with ErrValueTooLarge/ErrConfig before any transaction opens.
const (
	MaxNameBytes  = 512
	MaxValueBytes = 1 << 20 // 1 MiB
)

// NewItem is the input to Add: the plaintext value to encrypt under a fresh
// nonce, plus its name and kind.
type NewItem struct {
	Name  string
	Kind  ItemKind
	Value []byte
}

// Item is a decrypted record as returned by Get. Value is a fresh copy of
// the decrypted plaintext; the caller owns it and is responsible for
// overwriting it with zeros once done.
type Item struct {
	ID        int64
	Name      string
	Kind      ItemKind
	Value     []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ItemMeta is the metadata-only projection returned by List: it never
// touches ciphertext, so it is safe to expose while Locked.
type ItemMeta struct {
	ID        int64
	Name      string
	Kind      ItemKind
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Patch describes a mutation to an existing item. A nil NewKind leaves the
// kind unchanged; NewValue is always required, since Update always produces
// a fresh nonce and ciphertext.
type Patch struct {
	NewKind  *ItemKind
	NewValue []byte
}

// Filter narrows List results. A zero-value Filter matches every item.
type Filter struct {
	KindEquals *ItemKind
	NamePrefix string
}

func (f Filter) matches(name string, kind ItemKind) bool {
	if f.KindEquals != nil && *f.KindEquals != kind {
		return false
	}
	if f.NamePrefix != "" && !strings.HasPrefix(name, f.NamePrefix) {
		return false
	}
	return true
}
