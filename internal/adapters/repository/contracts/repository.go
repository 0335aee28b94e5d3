package contracts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/sahilm/fuzzy"

	"github.com/trebuchet-org/treb-deploy/internal/domain"
	"github.com/trebuchet-org/treb-deploy/internal/domain/config"
	"github.com/trebuchet-org/treb-deploy/internal/usecase"
)

// artifactFile is the on-disk layout shared by Foundry and Hardhat artifacts.
type artifactFile struct {
	ContractName string          `json:"contractName"`
	ABI          json.RawMessage `json:"abi"`
	Bytecode     bytecodeField   `json:"bytecode"`
}

// bytecodeField accepts Foundry's {"object": "0x..."} and Hardhat's plain string.
type bytecodeField string

func (b *bytecodeField) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*b = bytecodeField(s)
		return nil
	}
	var obj struct {
		Object string `json:"object"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("bytecode must be a hex string or an object with an object field: %w", err)
	}
	*b = bytecodeField(obj.Object)
	return nil
}

// entry is an indexed artifact file: <Source>.sol/<Name>.json
type entry struct {
	Name   string
	Source string
	Path   string
}

func (e *entry) key() string {
	return e.Source + ":" + e.Name
}

// Repository discovers compiled artifacts and loads them on demand
type Repository struct {
	artifactsDir string
	log          *slog.Logger

	mu      sync.RWMutex
	indexed bool
	byKey   map[string]*entry
	byName  map[string][]*entry
	loaded  map[string]*domain.Artifact
}

// NewRepository creates a new artifact repository
func NewRepository(cfg *config.RuntimeConfig, log *slog.Logger) *Repository {
	return &Repository{
		artifactsDir: cfg.ArtifactsDir,
		log:          log.With("component", "ArtifactRepository"),
		byKey:        make(map[string]*entry),
		byName:       make(map[string][]*entry),
		loaded:       make(map[string]*domain.Artifact),
	}
}

// Index discovers all artifact files under the artifacts directory
func (r *Repository) Index() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.indexed {
		return nil
	}

	if _, err := os.Stat(r.artifactsDir); os.IsNotExist(err) {
		r.indexed = true
		return nil
	}

	err := filepath.WalkDir(r.artifactsDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if name := d.Name(); name == "build-info" || name == "cache" || (strings.HasPrefix(name, ".") && path != r.artifactsDir) {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".json" || strings.HasSuffix(path, ".dbg.json") {
			return nil
		}

		source := filepath.Base(filepath.Dir(path))
		if !strings.HasSuffix(source, ".sol") && !strings.HasSuffix(source, ".vy") {
			return nil
		}

		e := &entry{
			Name:   strings.TrimSuffix(filepath.Base(path), ".json"),
			Source: source,
			Path:   path,
		}
		r.byKey[e.key()] = e
		r.byName[e.Name] = append(r.byName[e.Name], e)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to index artifacts in %s: %w", r.artifactsDir, err)
	}

	r.log.Debug("indexed artifacts", "dir", r.artifactsDir, "count", len(r.byKey))
	r.indexed = true
	return nil
}

// GetArtifact resolves a reference: a path to an artifact JSON file, a
// "File.sol:Name" key, or a bare contract name.
func (r *Repository) GetArtifact(ctx context.Context, ref string) (*domain.Artifact, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("%w: empty artifact reference", domain.ErrArtifactNotFound)
	}

	if strings.HasSuffix(ref, ".json") {
		if _, err := os.Stat(ref); err != nil {
			return nil, fmt.Errorf("%w: %s", domain.ErrArtifactNotFound, ref)
		}
		return r.load(ref)
	}

	// Foundry layout fast path
	if !strings.Contains(ref, ":") {
		direct := filepath.Join(r.artifactsDir, ref+".sol", ref+".json")
		if _, err := os.Stat(direct); err == nil {
			return r.load(direct)
		}
	}

	if err := r.Index(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	var (
		match   *entry
		matches []*entry
	)
	if source, name, ok := strings.Cut(ref, ":"); ok {
		match = r.byKey[filepath.Base(source)+":"+name]
	} else {
		matches = r.byName[ref]
		if len(matches) == 1 {
			match = matches[0]
		}
	}
	r.mu.RUnlock()

	if match != nil {
		return r.load(match.Path)
	}
	if len(matches) > 1 {
		paths := make([]string, len(matches))
		for i, m := range matches {
			paths[i] = m.Path
			if rel, err := filepath.Rel(r.artifactsDir, m.Path); err == nil {
				paths[i] = rel
			}
		}
		sort.Strings(paths)
		return nil, domain.AmbiguousArtifactErr{Ref: ref, Matches: paths}
	}

	return nil, r.notFound(ref)
}

// Names returns every indexed contract name, sorted.
func (r *Repository) Names() []string {
	if err := r.Index(); err != nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Repository) notFound(ref string) error {
	if _, err := os.Stat(r.artifactsDir); os.IsNotExist(err) {
		return fmt.Errorf("%w: %s (artifacts directory %s does not exist, run forge build first)",
			domain.ErrArtifactNotFound, ref, r.artifactsDir)
	}

	_, name, ok := strings.Cut(ref, ":")
	if !ok {
		name = ref
	}
	matches := fuzzy.Find(name, r.Names())
	if len(matches) == 0 {
		return fmt.Errorf("%w: %s", domain.ErrArtifactNotFound, ref)
	}
	suggestions := make([]string, 0, 3)
	for i := 0; i < len(matches) && i < 3; i++ {
		suggestions = append(suggestions, matches[i].Str)
	}
	return fmt.Errorf("%w: %s (did you mean %s?)", domain.ErrArtifactNotFound, ref, strings.Join(suggestions, ", "))
}

// load reads and parses one artifact file. Results are cached by path.
func (r *Repository) load(path string) (*domain.Artifact, error) {
	r.mu.RLock()
	cached, ok := r.loaded[path]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}

	artifact, err := ParseArtifactFile(path)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.loaded[path] = artifact
	r.mu.Unlock()
	return artifact, nil
}

// ParseArtifactFile reads a Foundry or Hardhat artifact.
func ParseArtifactFile(path string) (*domain.Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrArtifactNotFound, path, err)
	}

	var file artifactFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrInvalidArtifact, path, err)
	}

	name := file.ContractName
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), ".json")
	}

	code := strings.TrimSpace(string(file.Bytecode))
	if code == "" || code == "0x" {
		return nil, fmt.Errorf("%w: %s has no creation bytecode (interface or abstract contract?)", domain.ErrInvalidArtifact, name)
	}
	if strings.Contains(code, "__") {
		return nil, fmt.Errorf("%w: %s has unlinked library references", domain.ErrInvalidArtifact, name)
	}
	if !strings.HasPrefix(code, "0x") {
		code = "0x" + code
	}
	bytecode, err := hexutil.Decode(code)
	if err != nil {
		return nil, fmt.Errorf("%w: %s has malformed bytecode: %v", domain.ErrInvalidArtifact, name, err)
	}

	abiJSON := file.ABI
	if len(bytes.TrimSpace(abiJSON)) == 0 || string(abiJSON) == "null" {
		abiJSON = json.RawMessage("[]")
	}
	parsed, err := abi.JSON(bytes.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("%w: %s has an invalid ABI: %v", domain.ErrInvalidArtifact, name, err)
	}

	return &domain.Artifact{
		Name:     name,
		Path:     path,
		Bytecode: bytecode,
		ABI:      parsed,
	}, nil
}

// Ensure the repository implements the port
var _ usecase.ArtifactRepository = (*Repository)(nil)
