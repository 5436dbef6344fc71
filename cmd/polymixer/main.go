// polymixer builds a single file that is simultaneously valid under several
// container formats, by composing byte regions contributed by
// format-specific producers (see the polymixer/producer package).
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/pkg/errors"

	"github.com/polymixer/polymixer/orchestrator"
	"github.com/polymixer/polymixer/producer"
	"github.com/polymixer/polymixer/producers/ext2"
	"github.com/polymixer/polymixer/producers/pdf"
	"github.com/polymixer/polymixer/producers/png"
	"github.com/polymixer/polymixer/producers/random"
	"github.com/polymixer/polymixer/producers/shell"
	"github.com/polymixer/polymixer/producers/truecrypt"
	"github.com/polymixer/polymixer/producers/veracrypt"
	"github.com/polymixer/polymixer/producers/zip"
	"github.com/polymixer/polymixer/registry"
)

var (
	modules       = flag.String("modules", "", "Comma-separated list of modules to mix, in the order their chunks should be collected (e.g. \"zip,png,random\")")
	output        = flag.String("output", "", "Output file path")
	debugManifest = flag.String("debug-manifest", "", "Optional path to write a line-oriented placement manifest to; a \".snappy\" suffix snappy-frames it")
	listModules   = flag.Bool("list-modules", false, "Print every available module name and exit")
)

func polymixerUsage() {
	fmt.Printf("Usage: %s -modules=mod1,mod2,... -output=path [OPTIONS]\n", os.Args[0])
	fmt.Printf("Other options:\n")
	flag.PrintDefaults()
}

// newRegistry returns a registry with every producer this binary knows how
// to build. truecrypt and veracrypt are registered with Recrypter/Resalter
// implementations that report they can't perform a re-keying operation:
// no dependency available to this module performs production-grade
// PBKDF2/AES-XTS (volume cryptography is explicitly out of scope; see
// SPEC_FULL.md §1), so a real implementation must be injected by whatever
// embeds polymixer as a library. Every other producer needs no such
// collaborator.
func newRegistry() *registry.Registry {
	r := registry.New()
	r.Register("pdf", pdf.New)
	r.Register("random", random.New)
	r.Register("shell", shell.New)
	r.Register("zip", zip.New)
	r.Register("png", png.New)
	r.Register("ext2", ext2.New)
	r.Register("truecrypt", func() producer.Producer { return truecrypt.New(unavailableRecrypter{}) })
	r.Register("veracrypt", func() producer.Producer { return veracrypt.New(unavailableResalter{}) })
	return r
}

// unavailableRecrypter and unavailableResalter back the truecrypt/veracrypt
// producers registered by this binary. They fail clearly instead of
// silently no-op'ing, so a -truecrypt-new-salt or -veracrypt-new-salt run
// without a real collaborator wired in doesn't write a corrupt volume.
type unavailableRecrypter struct{}

func (unavailableRecrypter) Decrypt(header, password, salt []byte, vera bool) ([]byte, error) {
	return nil, errors.New("truecrypt: re-keying requires a Recrypter; polymixer's CLI binary doesn't embed one")
}

func (unavailableRecrypter) Encrypt(clearHeader, password, newSalt []byte, vera bool) ([]byte, error) {
	return nil, errors.New("truecrypt: re-keying requires a Recrypter; polymixer's CLI binary doesn't embed one")
}

type unavailableResalter struct{}

func (unavailableResalter) Resalt(outputPath, password, extSaltPath string) error {
	return errors.New("veracrypt: resalting requires a Resalter; polymixer's CLI binary doesn't embed one")
}

// prescanGlobalFlags hand-scans args for -modules/--modules and
// -list-modules/--list-modules, tolerating any other token (including
// producer flags like -zip-file that aren't registered yet). This stands
// in for original_source/main.py's two argparse.parse_known_args passes:
// the stdlib flag package has no "ignore unrecognized flags" mode, and
// flag.Parse on flag.CommandLine aborts with "flag provided but not
// defined" on the first not-yet-registered producer flag it meets, so the
// modules list can't be discovered that way before producer Params have
// run.
func prescanGlobalFlags(args []string) (modules string, list, help bool) {
	for i := 0; i < len(args); i++ {
		name := strings.TrimLeft(args[i], "-")
		if name == args[i] {
			continue // not a flag token
		}
		value := ""
		hasValue := false
		if eq := strings.IndexByte(name, '='); eq >= 0 {
			value, name = name[eq+1:], name[:eq]
			hasValue = true
		}
		switch name {
		case "modules":
			if hasValue {
				modules = value
			} else if i+1 < len(args) {
				modules = args[i+1]
				i++
			}
		case "list-modules":
			list = true
		case "h", "help":
			help = true
		}
	}
	return modules, list, help
}

func main() {
	flag.Usage = polymixerUsage

	reg := newRegistry()

	modulesArg, list, help := prescanGlobalFlags(os.Args[1:])
	if help {
		polymixerUsage()
		return
	}

	if list {
		for _, name := range reg.List() {
			fmt.Println(name)
		}
		return
	}

	if modulesArg == "" {
		polymixerUsage()
		os.Exit(2)
	}
	names := strings.Split(modulesArg, ",")

	var producers []producer.Producer
	for _, name := range names {
		name = strings.TrimSpace(name)
		p, err := reg.Get(name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		p.Params(flag.CommandLine)
		producers = append(producers, p)
	}

	// Now that every selected module's flags are registered, parse the
	// full argument list once so -modules, -output, and e.g. -zip-file
	// all take effect together.
	if err := flag.CommandLine.Parse(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	if *output == "" {
		fmt.Fprintln(os.Stderr, "Error: -output is required")
		os.Exit(2)
	}

	shutdown := grail.Init()
	defer shutdown()

	args := &producer.Args{Output: *output, FlagSet: flag.CommandLine}
	cfg := orchestrator.Config{OutputPath: *output, DebugManifestPath: *debugManifest}
	if err := orchestrator.Build(producers, args, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		shutdown()
		os.Exit(1)
	}
	log.Debug.Printf("exiting")
}
