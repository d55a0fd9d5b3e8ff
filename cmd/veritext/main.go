package main

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/veritext/veritext/attest"
	"github.com/veritext/veritext/canonical"
	"github.com/veritext/veritext/cidutil"
	"github.com/veritext/veritext/index"
	sqliteindex "github.com/veritext/veritext/index/sqlite"
	"github.com/veritext/veritext/keys"
	"github.com/veritext/veritext/provenance"
	"github.com/veritext/veritext/provider"
	"github.com/veritext/veritext/storage"
	"github.com/veritext/veritext/storage/gateway"
	"github.com/veritext/veritext/storage/grpccas"
	"github.com/veritext/veritext/storage/localfs"
	"github.com/veritext/veritext/verify"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}

	switch args[0] {
	case "compose":
		return cmdCompose(args[1:], out, errOut)
	case "verify":
		return cmdVerify(args[1:], out, errOut)
	case "lookup":
		return cmdLookup(args[1:], out, errOut)
	case "doc-cid":
		return cmdDocCID(args[1:], out, errOut)
	case "key":
		return cmdKey(args[1:], out, errOut)
	case "bundle":
		return cmdBundle(args[1:], out, errOut)
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "veritext: provenance records for AI-generated text")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  veritext compose (--text <text> | --file <path>) [--prompt <text>] [--param k=v ...] [--store-prompt] [--attest none|mock|zk] [--prover <bin>] [--openai-model <m>] (--seed-hex <64hex> | --signer <name> [--signer-role <role>] | --key-file <path> | --unsigned) [storage flags]")
	fmt.Fprintln(w, "  veritext verify --cid <signedCID> [--prompt <text>] [--content] [--expect-keyword <w> ...] [--journal-cid <CID>] [--proof-cid <CID>] [storage flags]")
	fmt.Fprintln(w, "  veritext lookup (--output-hash <0x..> | --text <text>) [storage flags]")
	fmt.Fprintln(w, "  veritext doc-cid <file>")
	fmt.Fprintln(w, "  veritext key init --name <name> [--seed-hex <64hex>] [--force]")
	fmt.Fprintln(w, "  veritext key derive --from <name> --role <role> [--force]")
	fmt.Fprintln(w, "  veritext key list")
	fmt.Fprintln(w, "  veritext key export --name <name> [--role <role>]")
	fmt.Fprintln(w, "  veritext bundle export --cid <signedCID> --out <file> [storage flags]")
	fmt.Fprintln(w, "  veritext bundle import --in <file> [storage flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Storage flags:")
	fmt.Fprintln(w, "  --cas-dir <dir>      local CAS directory (default ~/.veritext/cas)")
	fmt.Fprintln(w, "  --cas-grpc <addr>    remote CAS daemon, used instead of --cas-dir")
	fmt.Fprintln(w, "  --gateway <url>      IPFS gateway used as a read fallback")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - --seed-hex must be 32 bytes (64 hex chars) secp256k1 seed")
	fmt.Fprintln(w, "  - keys are stored under ~/.veritext/keys/<name> (0600 private key files)")
	fmt.Fprintln(w, "  - compose prints the signed CID on stdout; pass OPENAI_API_KEY to use a real model")
	fmt.Fprintln(w, "  - verify prints a JSON report; exit status 1 means the report has issues")
}

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

type storageFlags struct {
	casDir  string
	casGRPC string
	gateURL string
}

func (sf *storageFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&sf.casDir, "cas-dir", "", "Local CAS directory")
	fs.StringVar(&sf.casGRPC, "cas-grpc", "", "Remote CAS daemon address")
	fs.StringVar(&sf.gateURL, "gateway", "", "IPFS gateway URL for read fallback")
}

func (sf *storageFlags) open() (storage.CAS, func(), error) {
	closeFn := func() {}

	var primary storage.CAS
	if sf.casGRPC != "" {
		client, err := grpccas.Dial(sf.casGRPC, grpccas.DialOptions{})
		if err != nil {
			return nil, nil, err
		}
		primary = client
		closeFn = func() { _ = client.Close() }
	} else {
		dir := sf.casDir
		if dir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, nil, err
			}
			dir = filepath.Join(home, ".veritext", "cas")
		}
		fsCAS, err := localfs.New(dir)
		if err != nil {
			return nil, nil, err
		}
		primary = fsCAS
	}

	if sf.gateURL != "" {
		gw, err := gateway.New(gateway.Options{Base: sf.gateURL})
		if err != nil {
			closeFn()
			return nil, nil, err
		}
		return storage.MultiCAS{Adapters: []storage.CAS{primary, gw}}, closeFn, nil
	}
	return primary, closeFn, nil
}

func openIndex(errOut io.Writer) index.Index {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	path := filepath.Join(home, ".veritext", "index.db")
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil
	}
	ix, err := sqliteindex.Open(path)
	if err != nil {
		fmt.Fprintf(errOut, "index unavailable: %v\n", err)
		return nil
	}
	return ix
}

func cmdCompose(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("compose", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var (
		text        = fs.String("text", "", "Input text")
		file        = fs.String("file", "", "Input text file")
		prompt      = fs.String("prompt", "", "Prompt override")
		storePrompt = fs.Bool("store-prompt", false, "Store prompt bytes in the CAS")
		attestMode  = fs.String("attest", "mock", "Attestation strategy: none, mock, or zk")
		proverBin   = fs.String("prover", "", "Prover binary for --attest zk")
		openaiModel = fs.String("openai-model", "", "OpenAI model name (requires OPENAI_API_KEY)")
		unsigned    = fs.Bool("unsigned", false, "Publish without a signature")
		seedHex     = fs.String("seed-hex", "", "Signing seed as hex")
		signer      = fs.String("signer", "", "Stored key name")
		signerRole  = fs.String("signer-role", "", "Stored key role")
		keyFile     = fs.String("key-file", "", "Seed file path")
		params      stringList
		sf          storageFlags
	)
	fs.Var(&params, "param", "Generation parameter k=v (repeatable)")
	sf.register(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	input := *text
	if input == "" && *file != "" {
		b, err := os.ReadFile(*file)
		if err != nil {
			fmt.Fprintf(errOut, "read --file: %v\n", err)
			return 1
		}
		input = string(b)
	}
	if input == "" && *prompt == "" {
		fmt.Fprintln(errOut, "usage: veritext compose (--text <text> | --file <path>) ...")
		return 2
	}

	paramMap, err := parseParams(params)
	if err != nil {
		fmt.Fprintf(errOut, "bad --param: %v\n", err)
		return 2
	}

	cas, closeFn, err := sf.open()
	if err != nil {
		fmt.Fprintf(errOut, "open storage: %v\n", err)
		return 1
	}
	defer closeFn()

	var attestor attest.Runner
	switch *attestMode {
	case "none":
	case "mock":
		attestor = &attest.MockRunner{}
	case "zk":
		if *proverBin == "" {
			fmt.Fprintln(errOut, "--attest zk requires --prover")
			return 2
		}
		attestor = &attest.ExecRunner{Bin: *proverBin}
	default:
		fmt.Fprintf(errOut, "unknown --attest mode: %s\n", *attestMode)
		return 2
	}

	var prov provider.Provider
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && *openaiModel != "" {
		prov = &provider.OpenAI{APIKey: key, Model: *openaiModel}
	} else {
		prov = provider.Mock{}
	}

	svc := &provenance.Service{
		CAS:      cas,
		Index:    openIndex(errOut),
		Provider: prov,
		Attestor: attestor,
	}

	ctx := context.Background()
	draft, err := svc.Compose(ctx, provenance.ComposeRequest{
		Text:        input,
		Prompt:      *prompt,
		Params:      paramMap,
		StorePrompt: *storePrompt,
	})
	if err != nil {
		fmt.Fprintf(errOut, "compose: %v\n", err)
		return 1
	}

	if !*unsigned {
		ks, kerr := keys.CreateKeyStore("")
		if kerr != nil {
			fmt.Fprintf(errOut, "keystore: %v\n", kerr)
			return 1
		}
		seed, kerr := ks.LoadSeed(*seedHex, *signer, *signerRole, *keyFile)
		if kerr != nil {
			fmt.Fprintf(errOut, "load signing key: %v\n", kerr)
			return 1
		}
		key, kerr := keys.KeyFromSeed(seed)
		if kerr != nil {
			fmt.Fprintf(errOut, "signing key: %v\n", kerr)
			return 1
		}
		if serr := svc.Sign(draft, key); serr != nil {
			fmt.Fprintf(errOut, "sign: %v\n", serr)
			return 1
		}
	}

	id, warnings, err := svc.Publish(ctx, draft.Envelope)
	if err != nil {
		fmt.Fprintf(errOut, "publish: %v\n", err)
		return 1
	}

	for _, w := range append(draft.Warnings, warnings...) {
		fmt.Fprintf(errOut, "warning: %s\n", w)
	}
	fmt.Fprintf(errOut, "output hash: %s\n", draft.Record.OutputHash)
	_, _ = fmt.Fprintln(out, id.String())
	return 0
}

func cmdVerify(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var (
		cidStr     = fs.String("cid", "", "Signed envelope CID")
		prompt     = fs.String("prompt", "", "Prompt to check against the bound hash")
		content    = fs.Bool("content", false, "Refetch content and recheck the output hash")
		journalCID = fs.String("journal-cid", "", "Journal CID override")
		proofCID   = fs.String("proof-cid", "", "Proof CID override")
		expect     stringList
		sf         storageFlags
	)
	fs.Var(&expect, "expect-keyword", "Keyword the attestation must contain (repeatable)")
	sf.register(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *cidStr == "" {
		fmt.Fprintln(errOut, "usage: veritext verify --cid <signedCID> ...")
		return 2
	}

	id, err := cidutil.Parse(*cidStr)
	if err != nil {
		fmt.Fprintf(errOut, "bad --cid: %v\n", err)
		return 2
	}
	req := verify.Request{
		SignedCID:      id,
		Prompt:         *prompt,
		ExpectKeywords: expect,
		IncludeContent: *content,
	}
	if *journalCID != "" {
		jid, jerr := cidutil.Parse(*journalCID)
		if jerr != nil {
			fmt.Fprintf(errOut, "bad --journal-cid: %v\n", jerr)
			return 2
		}
		req.JournalCID = jid
	}
	if *proofCID != "" {
		pid, perr := cidutil.Parse(*proofCID)
		if perr != nil {
			fmt.Fprintf(errOut, "bad --proof-cid: %v\n", perr)
			return 2
		}
		req.ProofCID = pid
	}

	cas, closeFn, err := sf.open()
	if err != nil {
		fmt.Fprintf(errOut, "open storage: %v\n", err)
		return 1
	}
	defer closeFn()

	v := &verify.Verifier{CAS: cas}
	rep, err := v.Verify(context.Background(), req)
	if err != nil {
		fmt.Fprintf(errOut, "verify: %v\n", err)
		return 1
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		fmt.Fprintf(errOut, "encode report: %v\n", err)
		return 1
	}
	if !rep.OK {
		return 1
	}
	return 0
}

func cmdLookup(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("lookup", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var (
		hash = fs.String("output-hash", "", "Output hash to look up")
		text = fs.String("text", "", "Output text to hash and look up")
	)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	h := *hash
	if h == "" && *text != "" {
		h = canonical.DigestText(*text)
	}
	if h == "" {
		fmt.Fprintln(errOut, "usage: veritext lookup (--output-hash <0x..> | --text <text>)")
		return 2
	}

	ix := openIndex(errOut)
	if ix == nil {
		fmt.Fprintln(errOut, "no index available")
		return 1
	}
	ids, err := ix.Lookup(h)
	if err != nil {
		fmt.Fprintf(errOut, "lookup: %v\n", err)
		return 1
	}
	for _, id := range ids {
		_, _ = fmt.Fprintln(out, id)
	}
	return 0
}

func cmdDocCID(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("doc-cid", flag.ContinueOnError)
	fs.SetOutput(errOut)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: veritext doc-cid <file>")
		return 2
	}
	b, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "read file: %v\n", err)
		return 1
	}
	id, err := cidutil.Sum(b)
	if err != nil {
		fmt.Fprintf(errOut, "cid: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(out, id.String())
	return 0
}

func cmdKey(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: veritext key <subcommand> ...")
		fmt.Fprintln(errOut, "subcommands: init, derive, list, export")
		return 2
	}
	ks, err := keys.CreateKeyStore("")
	if err != nil {
		fmt.Fprintf(errOut, "keystore: %v\n", err)
		return 1
	}

	switch args[0] {
	case "init":
		fs := flag.NewFlagSet("key init", flag.ContinueOnError)
		fs.SetOutput(errOut)
		name := fs.String("name", "", "Key name")
		seedHex := fs.String("seed-hex", "", "Seed as hex; random when omitted")
		force := fs.Bool("force", false, "Overwrite an existing key")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		if *name == "" {
			fmt.Fprintln(errOut, "usage: veritext key init --name <name> [--seed-hex <64hex>] [--force]")
			return 2
		}
		var seed []byte
		if *seedHex != "" {
			seed, err = keys.ParseSeedHex(*seedHex)
			if err != nil {
				fmt.Fprintf(errOut, "bad --seed-hex: %v\n", err)
				return 2
			}
		} else {
			seed = make([]byte, keys.SeedSize)
			if _, err := rand.Read(seed); err != nil {
				fmt.Fprintf(errOut, "generate seed: %v\n", err)
				return 1
			}
		}
		addr, path, err := ks.InitializeRootKey(*name, seed, *force)
		if err != nil {
			fmt.Fprintf(errOut, "key init: %v\n", err)
			return 1
		}
		fmt.Fprintf(errOut, "stored %s\n", path)
		_, _ = fmt.Fprintln(out, addr)
		return 0

	case "derive":
		fs := flag.NewFlagSet("key derive", flag.ContinueOnError)
		fs.SetOutput(errOut)
		from := fs.String("from", "", "Root key name")
		role := fs.String("role", "", "Role name")
		force := fs.Bool("force", false, "Overwrite an existing role key")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		if *from == "" || *role == "" {
			fmt.Fprintln(errOut, "usage: veritext key derive --from <name> --role <role> [--force]")
			return 2
		}
		addr, path, err := ks.DeriveKeyFromRole(*from, *role, *force)
		if err != nil {
			fmt.Fprintf(errOut, "key derive: %v\n", err)
			return 1
		}
		fmt.Fprintf(errOut, "stored %s\n", path)
		_, _ = fmt.Fprintln(out, addr)
		return 0

	case "list":
		entries, err := ks.ListKeys()
		if err != nil {
			fmt.Fprintf(errOut, "key list: %v\n", err)
			return 1
		}
		for _, e := range entries {
			if len(e.Roles) == 0 {
				_, _ = fmt.Fprintln(out, e.Identifier)
				continue
			}
			_, _ = fmt.Fprintf(out, "%s\t%s\n", e.Identifier, strings.Join(e.Roles, ","))
		}
		return 0

	case "export":
		fs := flag.NewFlagSet("key export", flag.ContinueOnError)
		fs.SetOutput(errOut)
		name := fs.String("name", "", "Key name")
		role := fs.String("role", "", "Role name")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		if *name == "" {
			fmt.Fprintln(errOut, "usage: veritext key export --name <name> [--role <role>]")
			return 2
		}
		addr, err := ks.ExportKey(*name, *role)
		if err != nil {
			fmt.Fprintf(errOut, "key export: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintln(out, addr)
		return 0

	default:
		fmt.Fprintf(errOut, "unknown key subcommand: %s\n", args[0])
		return 2
	}
}

func cmdBundle(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: veritext bundle <export|import> ...")
		return 2
	}
	switch args[0] {
	case "export":
		fs := flag.NewFlagSet("bundle export", flag.ContinueOnError)
		fs.SetOutput(errOut)
		cidStr := fs.String("cid", "", "Signed envelope CID")
		outPath := fs.String("out", "", "Output bundle file")
		var sf storageFlags
		sf.register(fs)
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		if *cidStr == "" || *outPath == "" {
			fmt.Fprintln(errOut, "usage: veritext bundle export --cid <signedCID> --out <file>")
			return 2
		}
		id, err := cidutil.Parse(*cidStr)
		if err != nil {
			fmt.Fprintf(errOut, "bad --cid: %v\n", err)
			return 2
		}
		cas, closeFn, err := sf.open()
		if err != nil {
			fmt.Fprintf(errOut, "open storage: %v\n", err)
			return 1
		}
		defer closeFn()

		f, err := os.Create(*outPath)
		if err != nil {
			fmt.Fprintf(errOut, "create --out: %v\n", err)
			return 1
		}
		svc := &provenance.Service{CAS: cas}
		if err := svc.ExportEvidence(f, id); err != nil {
			_ = f.Close()
			fmt.Fprintf(errOut, "export: %v\n", err)
			return 1
		}
		if err := f.Close(); err != nil {
			fmt.Fprintf(errOut, "close --out: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintln(out, *outPath)
		return 0

	case "import":
		fs := flag.NewFlagSet("bundle import", flag.ContinueOnError)
		fs.SetOutput(errOut)
		inPath := fs.String("in", "", "Bundle file to import")
		var sf storageFlags
		sf.register(fs)
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		if *inPath == "" {
			fmt.Fprintln(errOut, "usage: veritext bundle import --in <file>")
			return 2
		}
		cas, closeFn, err := sf.open()
		if err != nil {
			fmt.Fprintf(errOut, "open storage: %v\n", err)
			return 1
		}
		defer closeFn()

		f, err := os.Open(*inPath)
		if err != nil {
			fmt.Fprintf(errOut, "open --in: %v\n", err)
			return 1
		}
		defer f.Close()

		svc := &provenance.Service{CAS: cas}
		if err := svc.ImportEvidence(f); err != nil {
			fmt.Fprintf(errOut, "import: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintln(out, "OK")
		return 0

	default:
		fmt.Fprintf(errOut, "unknown bundle subcommand: %s\n", args[0])
		return 2
	}
}

func parseParams(kvs []string) (map[string]any, error) {
	if len(kvs) == 0 {
		return nil, nil
	}
	out := map[string]any{}
	for _, kv := range kvs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("want k=v, got %q", kv)
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			out[k] = f
			continue
		}
		if b, err := strconv.ParseBool(v); err == nil {
			out[k] = b
			continue
		}
		out[k] = v
	}
	return out, nil
}
