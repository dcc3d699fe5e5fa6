package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"codemod/internal/backend"
	"codemod/internal/checksum"
	"codemod/internal/config"
	"codemod/internal/editset"
	"codemod/internal/filerename"
	"codemod/internal/journal"
	"codemod/internal/logger"
	"codemod/internal/structural"
	"codemod/internal/symbols"
	"codemod/internal/textpat"
	"codemod/internal/tsproject"

	"github.com/spf13/cobra"
)

var (
	rootCmd = &cobra.Command{
		Use:           "codemod",
		Short:         "Batch code transformations with reviewable editsets",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flagRoot    string
	flagVerbose bool

	flagFile       string
	flagLine       int
	flagCol        int
	flagTo         string
	flagPattern    string
	flagReplace    string
	flagRewrite    string
	flagLang       string
	flagGlobs      []string
	flagGlob       string
	flagEditset    string
	flagInclude    []string
	flagExclude    []string
	flagOut        string
	flagStdoutOnly bool
	flagDryRun     bool
	flagMatch      string
	flagApplyNow   bool
	flagLimit      int
	flagEntry      string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		out, _ := json.Marshal(map[string]string{"error": err.Error()})
		fmt.Println(string(out))
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagRoot, "root", "", "project root (default: git worktree, then cwd)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging on stderr")

	positionFlags(symbolCmd)
	positionFlags(refsCmd)

	findCmd.Flags().StringVar(&flagPattern, "pattern", "", "substring to match symbol names against")
	findCmd.MarkFlagRequired("pattern")

	positionFlags(renameCmd)
	renameCmd.Flags().StringVar(&flagTo, "to", "", "replacement name")
	renameCmd.MarkFlagRequired("to")
	artifactFlags(renameCmd)

	renameBatchCmd.Flags().StringVar(&flagPattern, "pattern", "", "name fragment to rename")
	renameBatchCmd.Flags().StringVar(&flagReplace, "replace", "", "replacement fragment")
	renameBatchCmd.MarkFlagRequired("pattern")
	renameBatchCmd.MarkFlagRequired("replace")
	artifactFlags(renameBatchCmd)

	conflictsCmd.Flags().StringVar(&flagPattern, "pattern", "", "name fragment to rename")
	conflictsCmd.Flags().StringVar(&flagReplace, "replace", "", "replacement fragment")
	conflictsCmd.MarkFlagRequired("pattern")
	conflictsCmd.MarkFlagRequired("replace")

	replaceCmd.Flags().StringVar(&flagPattern, "pattern", "", "structural pattern ($VAR metavariables)")
	replaceCmd.Flags().StringVar(&flagRewrite, "rewrite", "", "rewrite template")
	replaceCmd.Flags().StringVar(&flagLang, "lang", "", "restrict matching to one language")
	replaceCmd.Flags().StringArrayVar(&flagGlobs, "glob", nil, "restrict matching to paths under this glob (repeatable)")
	replaceCmd.MarkFlagRequired("pattern")
	artifactFlags(replaceCmd)

	replaceTextCmd.Flags().StringVar(&flagPattern, "pattern", "", "regular expression")
	replaceTextCmd.Flags().StringVar(&flagReplace, "replace", "", "replacement text ($1 expands captures)")
	replaceTextCmd.Flags().StringArrayVar(&flagGlobs, "glob", nil, "restrict matching to paths under this glob (repeatable)")
	replaceTextCmd.MarkFlagRequired("pattern")
	replaceTextCmd.MarkFlagRequired("replace")
	artifactFlags(replaceTextCmd)

	selectCmd.Flags().StringVar(&flagEditset, "editset", "", "editset artifact path")
	selectCmd.Flags().StringSliceVar(&flagInclude, "include", nil, "ref ids to select (others are deselected)")
	selectCmd.Flags().StringSliceVar(&flagExclude, "exclude", nil, "ref ids to deselect, applied after --include")
	selectCmd.Flags().StringVar(&flagOut, "out", "", "write the filtered editset here instead of in place")
	selectCmd.MarkFlagRequired("editset")

	verifyCmd.Flags().StringVar(&flagEditset, "editset", "", "editset artifact path")
	verifyCmd.MarkFlagRequired("editset")

	applyCmd.Flags().StringVar(&flagEditset, "editset", "", "editset artifact path")
	applyCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "report what would change without writing")
	applyCmd.MarkFlagRequired("editset")

	renameFilesCmd.Flags().StringVar(&flagMatch, "match", "", "basename fragment to match (case-insensitive)")
	renameFilesCmd.Flags().StringVar(&flagReplace, "replace", "", "replacement fragment")
	renameFilesCmd.Flags().StringVar(&flagGlob, "glob", "", "restrict matching to paths under this glob")
	renameFilesCmd.Flags().BoolVar(&flagApplyNow, "apply", false, "apply the proposed renames immediately")
	renameFilesCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "with --apply, report without renaming")
	renameFilesCmd.MarkFlagRequired("match")
	renameFilesCmd.MarkFlagRequired("replace")
	artifactFlags(renameFilesCmd)

	historyCmd.Flags().IntVar(&flagLimit, "limit", 0, "newest N entries (0 for all)")

	revertCmd.Flags().StringVar(&flagEntry, "entry", "", "journal entry id to revert")
	revertCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "report what would be restored without writing")
	revertCmd.MarkFlagRequired("entry")

	rootCmd.AddCommand(symbolCmd, refsCmd, findCmd)
	rootCmd.AddCommand(renameCmd, renameBatchCmd, conflictsCmd, replaceCmd, replaceTextCmd)
	rootCmd.AddCommand(selectCmd, verifyCmd, applyCmd, renameFilesCmd)
	rootCmd.AddCommand(backendsCmd, historyCmd, revertCmd)
}

func positionFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagFile, "file", "", "source file, relative to the project root")
	cmd.Flags().IntVar(&flagLine, "line", 0, "1-indexed line")
	cmd.Flags().IntVar(&flagCol, "col", 0, "1-indexed column")
	cmd.MarkFlagRequired("file")
	cmd.MarkFlagRequired("line")
	cmd.MarkFlagRequired("col")
}

func artifactFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagOut, "out", "", "write the editset artifact to this path")
	cmd.Flags().BoolVar(&flagStdoutOnly, "stdout-only", false, "print the editset without persisting an artifact")
}

// setup loads configuration and installs the logger. Every command calls it
// first.
func setup() (*config.Config, error) {
	cfg, err := config.Load(flagRoot)
	if err != nil {
		return nil, err
	}
	logCfg := logger.DefaultConfig()
	if flagVerbose {
		logCfg.Level = slog.LevelDebug
	}
	logger.Init(logCfg)
	return cfg, nil
}

// newRegistry wires the standard backends. The symbol backend's project
// handle starts empty; symbolFinder loads it for the commands that resolve
// symbols, so pattern and file commands never pay for a parse.
func newRegistry(cfg *config.Config) (*backend.Registry, *tsproject.Project) {
	project := tsproject.New(cfg.Project.Root, cfg.Project.IgnoreDirs)
	reg := backend.NewRegistry()
	reg.Register(symbols.New(project))
	reg.Register(structural.New(cfg.Project.Root, cfg.Tools.AstGrep))
	reg.Register(textpat.New(cfg.Project.Root, cfg.Tools.Ripgrep, cfg.Project.IgnoreDirs))
	reg.Register(filerename.New(cfg.Project.Root, cfg.Project.IgnoreDirs))
	return reg, project
}

// symbolFinder picks the backend claiming file and loads the project
// snapshot it answers from.
func symbolFinder(ctx context.Context, reg *backend.Registry, project *tsproject.Project, file string) (backend.SymbolFinder, error) {
	b := reg.ForFile(file)
	if b == nil {
		return nil, fmt.Errorf("no backend claims %s", file)
	}
	finder, ok := b.(backend.SymbolFinder)
	if !ok {
		return nil, fmt.Errorf("backend %q cannot resolve symbols in %s", b.Info().Name, file)
	}
	if err := project.Reset(ctx); err != nil {
		return nil, err
	}
	return finder, nil
}

// namedSymbolBackend returns the symbol backend with its project loaded, for
// the commands that work project-wide rather than from a file position.
func namedSymbolBackend(ctx context.Context, reg *backend.Registry, project *tsproject.Project) (backend.Backend, error) {
	b, ok := reg.ByName("symbol")
	if !ok {
		return nil, fmt.Errorf("symbol backend not registered")
	}
	if err := project.Reset(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// persistEditset writes the proposal artifact under the state dir (or the
// --out override) and returns where it landed. --stdout-only skips the
// artifact entirely.
func persistEditset(cfg *config.Config, es *editset.Editset) (string, error) {
	if flagStdoutOnly {
		return "", nil
	}
	path := flagOut
	if path == "" {
		path = filepath.Join(cfg.EditsetsDir(), es.ID+".json")
	}
	if err := editset.Save(es, path); err != nil {
		return "", err
	}
	return path, nil
}

func persistFileset(cfg *config.Config, fs *editset.FileEditset) (string, error) {
	if flagStdoutOnly {
		return "", nil
	}
	path := flagOut
	if path == "" {
		path = filepath.Join(cfg.EditsetsDir(), fs.ID+".json")
	}
	if err := editset.SaveFileset(fs, path); err != nil {
		return "", err
	}
	return path, nil
}

// captureFiles snapshots the current content of the given project-relative
// paths. Unreadable files are simply absent from the result.
func captureFiles(root string, files []string) map[string][]byte {
	pre := make(map[string][]byte, len(files))
	for _, f := range files {
		if content, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(f))); err == nil {
			pre[f] = content
		}
	}
	return pre
}

type refsOutput struct {
	Count int                 `json:"count"`
	Refs  []editset.Reference `json:"refs"`
}

type findOutput struct {
	Count   int              `json:"count"`
	Symbols []backend.Symbol `json:"symbols"`
}

type proposalOutput struct {
	*editset.Editset
	SavedTo string `json:"savedTo,omitempty"`
}

type fileProposalOutput struct {
	*editset.FileEditset
	SavedTo      string                   `json:"savedTo,omitempty"`
	Result       *editset.FileApplyResult `json:"result,omitempty"`
	JournalEntry string                   `json:"journalEntry,omitempty"`
}

type applyOutput struct {
	*editset.ApplyResult
	JournalEntry string `json:"journalEntry,omitempty"`
}

type backendInfo struct {
	backend.Info
	Capabilities []string `json:"capabilities"`
}

type historyOutput struct {
	Count   int             `json:"count"`
	Entries []journal.Entry `json:"entries"`
}

var symbolCmd = &cobra.Command{
	Use:   "symbol",
	Short: "Resolve the symbol at a position",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}
		reg, project := newRegistry(cfg)
		finder, err := symbolFinder(cmd.Context(), reg, project, flagFile)
		if err != nil {
			return err
		}
		sym, err := finder.SymbolAt(cmd.Context(), flagFile, flagLine, flagCol)
		if err != nil {
			return err
		}
		return printJSON(sym)
	},
}

var refsCmd = &cobra.Command{
	Use:   "refs",
	Short: "List every reference of the symbol at a position",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}
		reg, project := newRegistry(cfg)
		finder, err := symbolFinder(cmd.Context(), reg, project, flagFile)
		if err != nil {
			return err
		}
		refs, err := finder.References(cmd.Context(), flagFile, flagLine, flagCol)
		if err != nil {
			return err
		}
		return printJSON(refsOutput{Count: len(refs), Refs: refs})
	},
}

var findCmd = &cobra.Command{
	Use:   "find",
	Short: "Find symbols whose name contains a pattern",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}
		reg, project := newRegistry(cfg)
		b, err := namedSymbolBackend(cmd.Context(), reg, project)
		if err != nil {
			return err
		}
		syms, err := b.(backend.SymbolFinder).FindSymbols(cmd.Context(), flagPattern)
		if err != nil {
			return err
		}
		return printJSON(findOutput{Count: len(syms), Symbols: syms})
	},
}

var renameCmd = &cobra.Command{
	Use:   "rename",
	Short: "Propose a rename of the symbol at a position",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}
		reg, project := newRegistry(cfg)
		finder, err := symbolFinder(cmd.Context(), reg, project, flagFile)
		if err != nil {
			return err
		}
		proposer, ok := finder.(backend.RenameProposer)
		if !ok {
			return fmt.Errorf("backend %q cannot propose renames", finder.Info().Name)
		}
		es, err := proposer.ProposeRename(cmd.Context(), flagFile, flagLine, flagCol, flagTo)
		if err != nil {
			return err
		}
		saved, err := persistEditset(cfg, es)
		if err != nil {
			return err
		}
		return printJSON(proposalOutput{Editset: es, SavedTo: saved})
	},
}

var renameBatchCmd = &cobra.Command{
	Use:   "rename-batch",
	Short: "Propose a case-preserving rename of every matching symbol",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}
		reg, project := newRegistry(cfg)
		b, err := namedSymbolBackend(cmd.Context(), reg, project)
		if err != nil {
			return err
		}
		es, err := b.(backend.RenameProposer).ProposeRenameBatch(cmd.Context(), flagPattern, flagReplace)
		if err != nil {
			return err
		}
		saved, err := persistEditset(cfg, es)
		if err != nil {
			return err
		}
		return printJSON(proposalOutput{Editset: es, SavedTo: saved})
	},
}

var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "Pre-flight collision report for a batch rename",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}
		reg, project := newRegistry(cfg)
		b, err := namedSymbolBackend(cmd.Context(), reg, project)
		if err != nil {
			return err
		}
		report, err := b.(backend.ConflictChecker).CheckConflicts(cmd.Context(), flagPattern, flagReplace)
		if err != nil {
			return err
		}
		return printJSON(report)
	},
}

var replaceCmd = &cobra.Command{
	Use:   "replace",
	Short: "Propose a structural pattern replacement",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}
		reg, _ := newRegistry(cfg)
		b, _ := reg.ByName("structural")
		es, err := b.(backend.PatternProposer).ProposeReplace(cmd.Context(), backend.PatternQuery{
			Pattern:     flagPattern,
			Replacement: flagRewrite,
			Lang:        flagLang,
			Globs:       flagGlobs,
		})
		if err != nil {
			return err
		}
		saved, err := persistEditset(cfg, es)
		if err != nil {
			return err
		}
		return printJSON(proposalOutput{Editset: es, SavedTo: saved})
	},
}

var replaceTextCmd = &cobra.Command{
	Use:   "replace-text",
	Short: "Propose a regex text replacement",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}
		reg, _ := newRegistry(cfg)
		b, _ := reg.ByName("text")
		es, err := b.(backend.PatternProposer).ProposeReplace(cmd.Context(), backend.PatternQuery{
			Pattern:     flagPattern,
			Replacement: flagReplace,
			Globs:       flagGlobs,
		})
		if err != nil {
			return err
		}
		saved, err := persistEditset(cfg, es)
		if err != nil {
			return err
		}
		return printJSON(proposalOutput{Editset: es, SavedTo: saved})
	},
}

var selectCmd = &cobra.Command{
	Use:   "select",
	Short: "Narrow an editset's selected refs",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := setup(); err != nil {
			return err
		}
		es, err := editset.Load(flagEditset)
		if err != nil {
			return err
		}
		// Filter distinguishes "flag absent" from "empty list": only pass
		// what the user actually set.
		var include, exclude []string
		if cmd.Flags().Changed("include") {
			include = flagInclude
		}
		if cmd.Flags().Changed("exclude") {
			exclude = flagExclude
		}
		filtered := editset.Filter(es, include, exclude)
		out := flagOut
		if out == "" {
			out = flagEditset
		}
		if err := editset.Save(filtered, out); err != nil {
			return err
		}
		return printJSON(proposalOutput{Editset: filtered, SavedTo: out})
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check an editset's files against their recorded checksums",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}
		es, err := editset.Load(flagEditset)
		if err != nil {
			return err
		}
		return printJSON(editset.Verify(es, cfg.Project.Root))
	},
}

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply an editset with per-file drift detection",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}
		es, err := editset.Load(flagEditset)
		if err != nil {
			return err
		}
		var pre map[string][]byte
		if !flagDryRun {
			pre = captureFiles(cfg.Project.Root, es.Files())
		}
		result := editset.Apply(es, cfg.Project.Root, flagDryRun)
		out := applyOutput{ApplyResult: result}
		if !flagDryRun && result.Applied > 0 {
			entryID, err := recordContentApply(cfg, es, pre)
			if err != nil {
				logger.ForComponent("main").Warn("apply succeeded but journaling failed", "error", err)
				result.Errors = append(result.Errors, fmt.Sprintf("journal: %v", err))
			}
			out.JournalEntry = entryID
		}
		return printJSON(out)
	},
}

// recordContentApply journals the files the apply actually changed, with
// their pre-images. Returns the new entry id, or "" when nothing changed.
func recordContentApply(cfg *config.Config, es *editset.Editset, pre map[string][]byte) (string, error) {
	var records []journal.FileRecord
	images := make(map[string][]byte)
	for _, file := range es.Files() {
		preContent, ok := pre[file]
		if !ok {
			continue
		}
		postContent, err := os.ReadFile(filepath.Join(cfg.Project.Root, filepath.FromSlash(file)))
		if err != nil {
			continue
		}
		preSum, postSum := checksum.Checksum(preContent), checksum.Checksum(postContent)
		if preSum == postSum {
			continue
		}
		records = append(records, journal.FileRecord{Path: file, PreChecksum: preSum, PostChecksum: postSum})
		images[file] = preContent
	}
	if len(records) == 0 {
		return "", nil
	}
	j, err := journal.Open(cfg.JournalPath(), cfg.BlobsDir())
	if err != nil {
		return "", err
	}
	defer j.Close()
	entry, err := j.Record(es.ID, es.Operation, records, images)
	if err != nil {
		return "", err
	}
	return entry.ID, nil
}

var renameFilesCmd = &cobra.Command{
	Use:   "rename-files",
	Short: "Propose (and optionally apply) batch file renames",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}
		reg, _ := newRegistry(cfg)
		b, _ := reg.ByName("filerename")
		renamer := b.(backend.FileRenamer)
		fs, err := renamer.ProposeFileRenames(cmd.Context(), flagMatch, flagReplace, flagGlob)
		if err != nil {
			return err
		}
		saved, err := persistFileset(cfg, fs)
		if err != nil {
			return err
		}
		out := fileProposalOutput{FileEditset: fs, SavedTo: saved}

		if flagApplyNow {
			var pre map[string][]byte
			if !flagDryRun {
				var olds []string
				for _, op := range fs.SelectedOps() {
					olds = append(olds, op.OldPath)
				}
				pre = captureFiles(cfg.Project.Root, olds)
			}
			result, err := renamer.ApplyFileRenames(cmd.Context(), fs, flagDryRun)
			if err != nil {
				return err
			}
			out.Result = result
			if !flagDryRun && result.Applied > 0 {
				entryID, err := recordFileRenames(cfg, fs, pre)
				if err != nil {
					logger.ForComponent("main").Warn("renames succeeded but journaling failed", "error", err)
					result.Errors = append(result.Errors, fmt.Sprintf("journal: %v", err))
				}
				out.JournalEntry = entryID
			}
		}
		return printJSON(out)
	},
}

// recordFileRenames journals the ops that actually moved: old path gone, new
// path present. A rename records the removal of one path and the creation of
// the other, so revert can undo both halves.
func recordFileRenames(cfg *config.Config, fs *editset.FileEditset, pre map[string][]byte) (string, error) {
	var records []journal.FileRecord
	images := make(map[string][]byte)
	for _, op := range fs.SelectedOps() {
		preContent, ok := pre[op.OldPath]
		if !ok {
			continue
		}
		if _, err := os.Stat(filepath.Join(cfg.Project.Root, filepath.FromSlash(op.OldPath))); !os.IsNotExist(err) {
			continue
		}
		newContent, err := os.ReadFile(filepath.Join(cfg.Project.Root, filepath.FromSlash(op.NewPath)))
		if err != nil {
			continue
		}
		records = append(records,
			journal.FileRecord{Path: op.OldPath, PreChecksum: checksum.Checksum(preContent)},
			journal.FileRecord{Path: op.NewPath, PostChecksum: checksum.Checksum(newContent)})
		images[op.OldPath] = preContent
	}
	if len(records) == 0 {
		return "", nil
	}
	j, err := journal.Open(cfg.JournalPath(), cfg.BlobsDir())
	if err != nil {
		return "", err
	}
	defer j.Close()
	entry, err := j.Record(fs.ID, fs.Operation, records, images)
	if err != nil {
		return "", err
	}
	return entry.ID, nil
}

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "List registered backends and their capabilities",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}
		reg, _ := newRegistry(cfg)
		list := make([]backendInfo, 0, len(reg.All()))
		for _, b := range reg.All() {
			list = append(list, backendInfo{Info: b.Info(), Capabilities: backend.Capabilities(b)})
		}
		return printJSON(list)
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List journaled applications, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}
		j, err := journal.Open(cfg.JournalPath(), cfg.BlobsDir())
		if err != nil {
			return err
		}
		defer j.Close()
		entries, err := j.List(flagLimit)
		if err != nil {
			return err
		}
		if entries == nil {
			entries = []journal.Entry{}
		}
		return printJSON(historyOutput{Count: len(entries), Entries: entries})
	},
}

var revertCmd = &cobra.Command{
	Use:   "revert",
	Short: "Restore the pre-images of a journaled application",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}
		j, err := journal.Open(cfg.JournalPath(), cfg.BlobsDir())
		if err != nil {
			return err
		}
		defer j.Close()
		result, err := j.Revert(flagEntry, cfg.Project.Root, flagDryRun)
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}
