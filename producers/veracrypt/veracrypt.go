// Package veracrypt splices a VeraCrypt container (header, hidden backup
// header and payload) into the composite file, translated from
// original_source/modules/veracrypt.py's VeracryptHandler. Re-keying after
// the salt ends up mixed with the rest of the polyglot is delegated to a
// Resalter, the Go analog of the Python handler's subprocess.run call into
// an external `veracrypt --change` invocation: this producer only performs
// the byte-level header swap described in its finish hook, never the
// header cryptography itself (spec.md §1).
package veracrypt

import (
	"flag"
	"io/ioutil"
	"os"

	"github.com/pkg/errors"
	"v.io/x/lib/vlog"

	"github.com/polymixer/polymixer/chunk"
	"github.com/polymixer/polymixer/hooks"
	"github.com/polymixer/polymixer/producer"
	"github.com/polymixer/polymixer/source"
)

const (
	headerSize        = 64 * 1024
	containerPosition = 128 * 1024
	volumeHeaderSize  = 512
	saltSize          = 64
	reencryptedSize   = volumeHeaderSize - saltSize
)

// Resalter performs the out-of-process re-keying that VeracryptHandler.finish
// shells out to `veracrypt --change` for. extSaltPath names a temp file
// holding the new salt, written by this package before Resalt is called.
type Resalter interface {
	Resalt(outputPath, password, extSaltPath string) error
}

// Handler is the veracrypt producer.
type Handler struct {
	file        string
	reencrypt   bool
	passwordStr string
	resalter    Resalter

	oldSalt []byte
}

// New returns a fresh veracrypt producer that uses r for re-keying when
// --veracrypt-new-salt is set; Setup fails in that case if r is nil.
func New(r Resalter) producer.Producer {
	return &Handler{resalter: r}
}

// Params registers --veracrypt-file, --veracrypt-new-salt and
// --veracrypt-password.
func (h *Handler) Params(fs *flag.FlagSet) {
	fs.StringVar(&h.file, "veracrypt-file", "", "Specify the source VeraCrypt container.")
	fs.BoolVar(&h.reencrypt, "veracrypt-new-salt", false, "Enables re-encryption of the key using the specified salt.")
	fs.StringVar(&h.passwordStr, "veracrypt-password", "", "The password of the VeraCrypt container.")
}

// Setup validates --veracrypt-new-salt/--veracrypt-password and, when
// re-keying was requested, registers the writing:finish handler.
func (h *Handler) Setup(args *producer.Args, bus *hooks.Bus) error {
	if h.reencrypt && h.passwordStr == "" {
		return errors.New("veracrypt: password is required to re-encrypt the keys with a new salt")
	}
	if h.reencrypt {
		if h.resalter == nil {
			return errors.New("veracrypt: no Resalter configured for --veracrypt-new-salt")
		}
		bus.Register(hooks.WritingFinish, func(ev hooks.Event) {
			if err := h.finish(ev.OutputPath); err != nil {
				vlog.Errorf("veracrypt: re-keying %s: %v", ev.OutputPath, err)
			}
		})
	}
	return nil
}

// finish reproduces VeracryptHandler.finish: the output file's first 64
// bytes are whatever salt the composite build happened to land there
// (likely another producer's), so the original VeraCrypt salt is written
// back in place before handing the file to the external re-keying tool,
// with the displaced new salt staged to a temp file for --extsalt.
func (h *Handler) finish(outputPath string) error {
	f, err := os.OpenFile(outputPath, os.O_RDWR, 0)
	if err != nil {
		return errors.Wrapf(err, "veracrypt: opening %s", outputPath)
	}
	defer f.Close()

	newSalt := make([]byte, saltSize)
	if _, err := f.ReadAt(newSalt, 0); err != nil {
		return errors.Wrap(err, "veracrypt: reading displaced salt")
	}
	if _, err := f.WriteAt(h.oldSalt, 0); err != nil {
		return errors.Wrap(err, "veracrypt: restoring original salt")
	}

	tmp, err := ioutil.TempFile("", "polymixer-veracrypt-salt-*")
	if err != nil {
		return errors.Wrap(err, "veracrypt: staging new salt")
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(newSalt); err != nil {
		tmp.Close()
		return errors.Wrap(err, "veracrypt: writing new salt")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "veracrypt: closing new salt file")
	}

	return h.resalter.Resalt(outputPath, h.passwordStr, tmp.Name())
}

// Chunks returns the container split into: the volume header (or just its
// re-encryptable tail when re-keying), the rest of the primary header area,
// the main data area, and the hidden backup header at the container's tail.
func (h *Handler) Chunks() ([]chunk.Chunk, error) {
	f, err := source.Open(h.file)
	if err != nil {
		return nil, errors.Wrapf(err, "veracrypt: opening %s", h.file)
	}
	data := f.Data
	imageSize := int64(len(data))
	if imageSize < 2*containerPosition {
		return nil, errors.New("veracrypt: container smaller than twice the header area")
	}
	containerSize := imageSize - 2*containerPosition

	h.oldSalt = data[0:saltSize]

	var chunks []chunk.Chunk
	if h.reencrypt {
		chunks = append(chunks, chunk.Chunk{
			Kind: chunk.Fixed, Pos: chunk.AtPosition(saltSize), Size: reencryptedSize, Offset: saltSize, Data: data,
		})
	} else {
		chunks = append(chunks, chunk.Chunk{
			Kind: chunk.Fixed, Pos: chunk.AtPosition(0), Size: volumeHeaderSize, Data: data,
		})
	}

	chunks = append(chunks,
		chunk.Chunk{Kind: chunk.Fixed, Pos: chunk.AtPosition(volumeHeaderSize), Size: headerSize - volumeHeaderSize, Offset: volumeHeaderSize, Data: data},
		chunk.Chunk{Kind: chunk.Fixed, Pos: chunk.AtPosition(containerPosition), Size: containerSize, Offset: containerPosition, Data: data},
		chunk.Chunk{Kind: chunk.Fixed, Pos: chunk.AtPosition(-containerPosition), Size: headerSize, Offset: imageSize - containerPosition, Data: data},
	)

	return chunks, nil
}
