// Package source loads the external files polymixer producers mmap into
// chunks (spec.md §5: "Producers may memory-map input files for the
// lifetime of the build and slice those maps into chunks").
//
// It generalizes original_source/modules/{zip,png2,truecrypt,veracrypt,
// ext2}.py's repeated `mmap.mmap(f.fileno(), 0, access=mmap.ACCESS_COPY)`
// into one shared loader, and additionally resolves s3:// input paths
// (github.com/aws/aws-sdk-go) and transparently decompresses .zst inputs
// (github.com/klauspost/compress/zstd) so a single Open call covers every
// producer's "read a source container" step.
package source

import (
	"fmt"
	"io/ioutil"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/klauspost/compress/zstd"
	"github.com/minio/highwayhash"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// fingerprintKey is a fixed 32-byte key for the non-cryptographic
// highwayhash fingerprint computed over the first 64 KiB of every loaded
// file (recorded on File for diagnostic logging, not as a security
// boundary).
var fingerprintKey = make([]byte, 32)

// File is a loaded source container: either an mmap'd view of a local file
// (ACCESS_COPY semantics — private, writable, not synced back to disk, the
// Go analog of Python's mmap.ACCESS_COPY) or an in-memory buffer for
// downloaded/decompressed inputs.
type File struct {
	Path        string
	Data        []byte
	Fingerprint uint64

	close func() error
}

// Close releases any mapping or temp file backing f. Safe to call on a
// zero-value-adjacent File with no backing resource.
func (f *File) Close() error {
	if f.close == nil {
		return nil
	}
	return f.close()
}

var cache = map[string]*File{}

// Open loads path, resolving s3:// URIs and .zst compression transparently,
// and mmaps local files with copy-on-write semantics so producers can patch
// File.Data without touching the original file on disk. Repeat Opens of the
// same path return the same cached *File; the cache is keyed by the path
// string as given, not by Fingerprint.
func Open(path string) (*File, error) {
	if f, ok := cache[path]; ok {
		return f, nil
	}

	local := path
	var cleanupDownload func() error

	if strings.HasPrefix(path, "s3://") {
		downloaded, cleanup, err := downloadS3(path)
		if err != nil {
			return nil, errors.Wrapf(err, "source: downloading %s", path)
		}
		local = downloaded
		cleanupDownload = cleanup
	}

	var f *File
	var err error
	if strings.HasSuffix(local, ".zst") {
		f, err = openCompressed(local)
	} else {
		f, err = openMmap(local)
	}
	if err != nil {
		if cleanupDownload != nil {
			cleanupDownload()
		}
		return nil, err
	}

	f.Path = path
	f.Fingerprint = fingerprint(f.Data)
	if cleanupDownload != nil {
		inner := f.close
		f.close = func() error {
			if inner != nil {
				if err := inner(); err != nil {
					return err
				}
			}
			return cleanupDownload()
		}
	}

	cache[path] = f
	return f, nil
}

func fingerprint(data []byte) uint64 {
	sample := data
	const maxSample = 64 * 1024
	if len(sample) > maxSample {
		sample = sample[:maxSample]
	}
	return highwayhash.Sum64(sample, fingerprintKey)
}

func openMmap(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "source: opening %s", path)
	}
	defer fh.Close()

	info, err := fh.Stat()
	if err != nil {
		return nil, errors.Wrapf(err, "source: stat %s", path)
	}
	size := int(info.Size())
	if size == 0 {
		return &File{Data: nil, close: func() error { return nil }}, nil
	}

	data, err := unix.Mmap(int(fh.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE)
	if err != nil {
		return nil, errors.Wrapf(err, "source: mmap %s", path)
	}

	return &File{
		Data:  data,
		close: func() error { return unix.Munmap(data) },
	}, nil
}

func openCompressed(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "source: opening %s", path)
	}
	defer fh.Close()

	dec, err := zstd.NewReader(fh)
	if err != nil {
		return nil, errors.Wrapf(err, "source: zstd init for %s", path)
	}
	defer dec.Close()

	data, err := ioutil.ReadAll(dec)
	if err != nil {
		return nil, errors.Wrapf(err, "source: zstd decompressing %s", path)
	}

	return &File{Data: data, close: func() error { return nil }}, nil
}

func downloadS3(uri string) (localPath string, cleanup func() error, err error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return "", nil, errors.Wrapf(err, "source: parsing %s", uri)
	}
	bucket := parsed.Host
	key := strings.TrimPrefix(parsed.Path, "/")

	tmp, err := ioutil.TempFile("", "polymixer-s3-*"+filepath.Ext(key))
	if err != nil {
		return "", nil, errors.Wrap(err, "source: creating temp file for s3 download")
	}

	sess, err := session.NewSession(aws.NewConfig())
	if err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", nil, errors.Wrap(err, "source: creating aws session")
	}
	downloader := s3manager.NewDownloader(sess)

	if _, err := downloader.Download(tmp, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", nil, errors.Wrapf(err, "source: downloading %s", uri)
	}
	tmp.Close()

	return tmp.Name(), func() error { return os.Remove(tmp.Name()) }, nil
}

// String renders a File's identity for debug-manifest/log output.
func (f *File) String() string {
	return fmt.Sprintf("source.File{%s, %d bytes, fp=%016x}", f.Path, len(f.Data), f.Fingerprint)
}
