// Package truecrypt splices a TrueCrypt/VeraCrypt container into the
// composite file, translated from original_source/modules/truecrypt.py's
// TruecryptHandler. The actual PBKDF2/AES-XTS header re-encryption needed
// to migrate a volume onto a new salt is delegated to a Recrypter supplied
// by the caller: volume cryptography is out of scope for this producer
// (spec.md §1), so Handler only knows how to find and replace the 512-byte
// header region, not how to break it open.
package truecrypt

import (
	"flag"

	"github.com/pkg/errors"

	"github.com/polymixer/polymixer/chunk"
	"github.com/polymixer/polymixer/hooks"
	"github.com/polymixer/polymixer/producer"
	"github.com/polymixer/polymixer/source"
)

const (
	headerSize       = 128 * 1024
	volumeHeaderSize = 512
	saltSize         = 64
	reencryptedSize  = volumeHeaderSize - saltSize
)

// Recrypter performs the PBKDF2-derived AES-XTS header transcoding that
// chunks_placed needed in original_source/modules/truecrypt.py. Handler
// never implements this itself; a caller wires in a real implementation
// (or a test fake).
type Recrypter interface {
	// Decrypt tries each supported hash algorithm against header using
	// password and salt, returning the cleartext header once a valid
	// TrueCrypt/VeraCrypt magic is found, or an error if none match. vera
	// selects VeraCrypt's higher PBKDF2 iteration count.
	Decrypt(header, password, salt []byte, vera bool) ([]byte, error)
	// Encrypt re-encrypts a cleartext header under a new salt.
	Encrypt(clearHeader, password, newSalt []byte, vera bool) ([]byte, error)
}

// Handler is the truecrypt producer.
type Handler struct {
	file        string
	reencrypt   bool
	passwordStr string
	password    []byte
	vera        bool
	recrypter   Recrypter

	headerChunk *chunk.Chunk
	oldSalt     []byte
	oldHeader   []byte
}

// New returns a fresh truecrypt producer that uses r for header
// re-encryption when --truecrypt-new-salt is set; Setup fails in that case
// if r is nil.
func New(r Recrypter) producer.Producer {
	return &Handler{recrypter: r}
}

// Params registers --truecrypt-file, --truecrypt-new-salt,
// --truecrypt-password and --truecrypt-vera.
func (h *Handler) Params(fs *flag.FlagSet) {
	fs.StringVar(&h.file, "truecrypt-file", "", "Specify the source TrueCrypt container.")
	fs.BoolVar(&h.reencrypt, "truecrypt-new-salt", false, "Enables re-encryption of the key using the specified salt.")
	fs.StringVar(&h.passwordStr, "truecrypt-password", "", "The password of the TrueCrypt container.")
	fs.BoolVar(&h.vera, "truecrypt-vera", false, "Support VeraCrypt images.")
}

// Setup validates the --truecrypt-new-salt/--truecrypt-password pairing and,
// when re-encryption was requested, registers the placing:complete handler
// that patches the header chunk once the new salt's final bytes are known.
func (h *Handler) Setup(args *producer.Args, bus *hooks.Bus) error {
	h.password = []byte(h.passwordStr)
	if h.reencrypt && len(h.password) == 0 {
		return errors.New("truecrypt: password is required to re-encrypt the keys with a new salt")
	}
	if h.reencrypt {
		if h.recrypter == nil {
			return errors.New("truecrypt: no Recrypter configured for --truecrypt-new-salt")
		}
		bus.Register(hooks.PlacingComplete, func(ev hooks.Event) {
			if err := h.chunksPlaced(ev.Engine); err != nil {
				h.headerChunk = nil // leave the header untouched rather than emit garbage
			}
		})
	}
	return nil
}

// chunksPlaced reproduces TruecryptHandler.chunks_placed: the new salt
// occupies the composite file's first 64 bytes once every chunk (including
// any tail chunk) has been placed, so it can only be read back now.
func (h *Handler) chunksPlaced(r hooks.Reader) error {
	newSalt, err := r.Read(0, saltSize)
	if err != nil {
		return errors.Wrap(err, "truecrypt: reading new salt")
	}

	clearHeader, err := h.recrypter.Decrypt(h.oldHeader, h.password, h.oldSalt, h.vera)
	if err != nil {
		return errors.Wrap(err, "truecrypt: could not find TrueCrypt header")
	}

	newHeader, err := h.recrypter.Encrypt(clearHeader, h.password, newSalt, h.vera)
	if err != nil {
		return errors.Wrap(err, "truecrypt: re-encrypting header")
	}
	copy(h.headerChunk.Data[h.headerChunk.Offset:], newHeader)
	return nil
}

// Chunks returns the container's header region (the whole 512-byte volume
// header, or just its re-encryptable 448-byte tail when --truecrypt-new-salt
// is set) plus a fixed chunk for everything past the 128KiB header area.
func (h *Handler) Chunks() ([]chunk.Chunk, error) {
	f, err := source.Open(h.file)
	if err != nil {
		return nil, errors.Wrapf(err, "truecrypt: opening %s", h.file)
	}
	data := f.Data
	imageSize := int64(len(data))
	if imageSize < headerSize {
		return nil, errors.New("truecrypt: container smaller than the header area")
	}

	h.oldSalt = data[0:saltSize]
	h.oldHeader = data[saltSize:volumeHeaderSize]

	var chunks []chunk.Chunk
	if h.reencrypt {
		headerChunk := chunk.Chunk{
			Kind: chunk.Fixed, Pos: chunk.AtPosition(saltSize), Size: reencryptedSize, Offset: saltSize, Data: data,
		}
		h.headerChunk = &headerChunk
		chunks = append(chunks, headerChunk)
	} else {
		chunks = append(chunks, chunk.Chunk{
			Kind: chunk.Fixed, Pos: chunk.AtPosition(0), Size: volumeHeaderSize, Data: data,
		})
	}

	chunks = append(chunks, chunk.Chunk{
		Kind: chunk.Fixed, Pos: chunk.AtPosition(headerSize), Size: imageSize - headerSize, Offset: headerSize, Data: data,
	})

	return chunks, nil
}
