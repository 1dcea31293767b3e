package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/KevoDB/blockstore/pkg/disk"
	"github.com/KevoDB/blockstore/pkg/engine"
	"github.com/KevoDB/blockstore/pkg/file"
)

const helpText = `
Blockstore (blockstore) - A simulated block storage disk with one record file.

Usage:
  blockstore [options]

Options:
  -blocks int             - Number of blocks in the pool (default 100)
  -config string          - Path of a JSON configuration file
  -backup-dir string      - Directory for backup snapshots
  -codec string           - Snapshot codec: none, snappy or zstd
  -log-level string       - Log level: debug, info, warn or error

Commands:
  .help                   - Show this help message
  .stats                  - Show engine statistics
  .backups                - Show the backup history
  .exit                   - Exit the program

  CREATE name count       - Create the file with room for count records
  INSERT id content       - Insert a record at the first free position
  SEARCH id               - Find the first record with the given id
  EDIT id content         - Replace the content of a record
  DELETE id               - Delete the first record with the given id
  SORT                    - Sort the records by ascending id
  SHOW                    - Display the records of the file
  DEFRAG                  - Move the records to the front of the file
  COMPACT                 - Move the used blocks to the start of the disk
  CLEAR                   - Empty every block of the disk
  DROP                    - Delete every record of the file
  STATUS                  - Show the state of every block
  COUNT                   - Count the records of the file
  FIND text               - List the records whose content contains text
  META                    - Show the meta information of the file
  BACKUP                  - Write the file to <backup-dir>/<name>.bak
  RESTORE name            - Load <backup-dir>/<name>.bak as the file
`

// shell executes one command line at a time against an engine
type shell struct {
	eng *engine.Engine
	out io.Writer
}

func newShell(eng *engine.Engine, out io.Writer) *shell {
	return &shell{eng: eng, out: out}
}

// prompt returns the prompt for the current state of the engine
func (s *shell) prompt() string {
	if name, ok := s.eng.FileName(); ok {
		return fmt.Sprintf("blockstore:%s> ", name)
	}
	return "blockstore> "
}

// execute runs line and reports whether the shell should exit
func (s *shell) execute(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	word, rest := nextField(line)
	cmd := strings.ToUpper(word)

	if strings.HasPrefix(cmd, ".") {
		switch strings.ToLower(cmd) {
		case ".help":
			fmt.Fprint(s.out, helpText)
		case ".stats":
			s.printStats()
		case ".backups":
			s.printBackups()
		case ".exit":
			fmt.Fprintln(s.out, "Goodbye!")
			return true
		default:
			fmt.Fprintf(s.out, "Unknown command: %s\n", word)
		}
		return false
	}

	var err error
	switch cmd {
	case "CREATE":
		err = s.create(rest)
	case "INSERT":
		err = s.insert(rest)
	case "SEARCH":
		err = s.search(rest)
	case "EDIT":
		err = s.edit(rest)
	case "DELETE":
		err = s.delete(rest)
	case "SORT":
		if err = s.eng.Sort(); err == nil {
			fmt.Fprintln(s.out, "File sorted")
		}
	case "SHOW":
		err = s.show()
	case "DEFRAG":
		if err = s.eng.Defragment(); err == nil {
			fmt.Fprintln(s.out, "File defragmented")
		}
	case "COMPACT":
		var relocation disk.Relocation
		if relocation, err = s.eng.Compact(); err == nil {
			fmt.Fprintf(s.out, "Compaction moved %d of %d blocks\n", relocation.Moved(), relocation.Len())
		}
	case "CLEAR":
		if err = s.eng.ClearAll(); err == nil {
			fmt.Fprintln(s.out, "Disk cleared")
		}
	case "DROP":
		if err = s.eng.DeleteFile(); err == nil {
			fmt.Fprintln(s.out, "File deleted")
		}
	case "STATUS":
		err = s.status()
	case "COUNT":
		var count int
		if count, err = s.eng.Count(); err == nil {
			fmt.Fprintf(s.out, "%d records\n", count)
		}
	case "FIND":
		err = s.find(rest)
	case "META":
		err = s.meta()
	case "BACKUP":
		err = s.backup()
	case "RESTORE":
		err = s.restore(rest)
	default:
		fmt.Fprintf(s.out, "Unknown command: %s\n", word)
		return false
	}

	if err != nil {
		fmt.Fprintf(s.out, "Error: %s\n", describe(err))
	}
	return false
}

func (s *shell) create(args string) error {
	name, rest := nextField(args)
	countArg, rest := nextField(rest)
	if name == "" || countArg == "" || rest != "" {
		return usage("CREATE name count")
	}
	count, err := strconv.Atoi(countArg)
	if err != nil {
		return fmt.Errorf("%w: count %q is not a number", disk.ErrInvalidArgument, countArg)
	}
	if err := s.eng.CreateFile(name, count); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "File %s created with %d entries\n", name, count)
	return nil
}

func (s *shell) insert(args string) error {
	id, content, err := idAndContent(args, "INSERT id content")
	if err != nil {
		return err
	}
	position, err := s.eng.Insert(id, content)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Record %d inserted at position %d\n", id, position)
	return nil
}

func (s *shell) search(args string) error {
	id, err := singleID(args, "SEARCH id")
	if err != nil {
		return err
	}
	entry, err := s.eng.Search(id)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Record %d found at position %d (block %d): %s\n",
		entry.Record.ID, entry.Position, entry.Locator, entry.Record.Content)
	return nil
}

func (s *shell) edit(args string) error {
	id, content, err := idAndContent(args, "EDIT id content")
	if err != nil {
		return err
	}
	if err := s.eng.Edit(id, content); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Record %d updated\n", id)
	return nil
}

func (s *shell) delete(args string) error {
	id, err := singleID(args, "DELETE id")
	if err != nil {
		return err
	}
	if err := s.eng.Delete(id); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Record %d deleted\n", id)
	return nil
}

func (s *shell) show() error {
	records, err := s.eng.Records()
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(s.out, "File is empty")
		return nil
	}
	for _, r := range records {
		fmt.Fprintf(s.out, "%4d  block %-4d id %-8d %s\n", r.Position, r.Locator, r.Record.ID, r.Record.Content)
	}
	return nil
}

func (s *shell) status() error {
	status, err := s.eng.DiskStatus()
	if err != nil {
		return err
	}
	used := 0
	for _, slot := range status {
		if !slot.Occupied {
			fmt.Fprintf(s.out, "%4d  free\n", slot.Locator)
			continue
		}
		used++
		fmt.Fprintf(s.out, "%4d  used  %s  id %-8d %016x\n", slot.Locator, slot.Owner, slot.Record.ID, slot.Digest)
	}
	fmt.Fprintf(s.out, "%d of %d blocks used\n", used, len(status))
	return nil
}

func (s *shell) find(args string) error {
	if args == "" {
		return usage("FIND text")
	}
	positions, err := s.eng.SearchByContent(args)
	if err != nil {
		return err
	}
	if len(positions) == 0 {
		fmt.Fprintf(s.out, "No record contains %q\n", args)
		return nil
	}
	parts := make([]string, len(positions))
	for i, p := range positions {
		parts[i] = strconv.Itoa(p)
	}
	fmt.Fprintf(s.out, "Found at positions: %s\n", strings.Join(parts, ", "))
	return nil
}

func (s *shell) meta() error {
	meta, err := s.eng.Meta()
	if err != nil {
		return err
	}
	first := "none"
	if meta.FirstBlock.Valid() {
		first = strconv.Itoa(int(meta.FirstBlock))
	}
	fmt.Fprintf(s.out, "File name:    %s\n", meta.FileName)
	fmt.Fprintf(s.out, "Block count:  %d\n", meta.BlockCount)
	fmt.Fprintf(s.out, "Record count: %d\n", meta.RecordCount)
	fmt.Fprintf(s.out, "First block:  %s\n", first)
	return nil
}

func (s *shell) backup() error {
	entry, err := s.eng.Backup()
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Backed up %s: %d records, %d bytes (%s)\n", entry.Name, entry.Records, entry.Size, entry.Codec)
	return nil
}

func (s *shell) restore(args string) error {
	name, rest := nextField(args)
	if name == "" || rest != "" {
		return usage("RESTORE name")
	}
	if err := s.eng.Restore(name); err != nil {
		return err
	}
	count, _ := s.eng.Count()
	fmt.Fprintf(s.out, "Restored %s with %d records\n", name, count)
	return nil
}

func (s *shell) printStats() {
	stats := s.eng.GetStats()

	// Helper function to safely get a uint64 value with default
	getUint64 := func(key string) uint64 {
		switch v := stats[key].(type) {
		case uint64:
			return v
		case int:
			return uint64(v)
		default:
			return 0
		}
	}

	fmt.Fprintln(s.out, "📊 Operations:")
	for _, op := range []string{"create", "insert", "search", "edit", "delete", "sort",
		"defragment", "compact", "clear", "delete_file", "search_content", "backup", "restore"} {
		if n := getUint64(op + "_ops"); n > 0 {
			fmt.Fprintf(s.out, "  • %s: %d\n", toTitle(strings.ReplaceAll(op, "_", " ")), n)
		}
	}

	fmt.Fprintln(s.out, "\n💾 Disk:")
	fmt.Fprintf(s.out, "  • Blocks used: %d of %d\n", getUint64("pool_used"), getUint64("pool_capacity"))
	fmt.Fprintf(s.out, "  • Compactions: %d (%d blocks moved)\n", getUint64("compaction_count"), getUint64("blocks_moved"))
	if name, ok := stats["active_file"].(string); ok {
		fmt.Fprintf(s.out, "  • Active file: %s (%d records)\n", name, getUint64("active_records"))
	}

	fmt.Fprintln(s.out, "\n📈 Bytes:")
	fmt.Fprintf(s.out, "  • Read: %d\n", getUint64("total_bytes_read"))
	fmt.Fprintf(s.out, "  • Written: %d\n", getUint64("total_bytes_written"))

	if errs, ok := stats["errors"].(map[string]uint64); ok && len(errs) > 0 {
		fmt.Fprintln(s.out, "\n⚠️ Errors:")
		keys := make([]string, 0, len(errs))
		for k := range errs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(s.out, "  • %s: %d\n", k, errs[k])
		}
	}
}

func (s *shell) printBackups() {
	backups := s.eng.Backups()
	if len(backups) == 0 {
		fmt.Fprintln(s.out, "No backups")
		return
	}
	for _, b := range backups {
		fmt.Fprintf(s.out, "%s  %-20s %4d records  %6d bytes  %s\n",
			time.Unix(b.Timestamp, 0).Format(time.RFC3339), b.Name, b.Records, b.Size, b.Codec)
	}
}

var errUsage = errors.New("usage")

func usage(form string) error {
	return fmt.Errorf("%w: %s", errUsage, form)
}

// describe turns engine errors into short operator messages
func describe(err error) string {
	switch {
	case errors.Is(err, errUsage):
		return err.Error()
	case errors.Is(err, engine.ErrNoActiveFile):
		return "no file, use CREATE or RESTORE first"
	case errors.Is(err, engine.ErrFileActive):
		return "the current file still has records, use DROP first"
	case errors.Is(err, file.ErrFileFull):
		return "the file is full"
	case errors.Is(err, disk.ErrOutOfSpace):
		return "the disk is full"
	case errors.Is(err, file.ErrNotFound):
		return "record not found"
	default:
		return err.Error()
	}
}

func singleID(args, form string) (int64, error) {
	idArg, rest := nextField(args)
	if idArg == "" || rest != "" {
		return 0, usage(form)
	}
	return parseID(idArg)
}

func idAndContent(args, form string) (int64, string, error) {
	idArg, content := nextField(args)
	if idArg == "" {
		return 0, "", usage(form)
	}
	id, err := parseID(idArg)
	if err != nil {
		return 0, "", err
	}
	return id, content, nil
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: id %q is not a number", disk.ErrInvalidArgument, arg)
	}
	return id, nil
}

// nextField splits off the first blank-separated word of s. The remainder
// keeps its inner spacing so record content survives as typed.
func nextField(s string) (string, string) {
	s = strings.TrimLeft(s, " \t")
	if i := strings.IndexAny(s, " \t"); i >= 0 {
		return s[:i], strings.TrimLeft(s[i:], " \t")
	}
	return s, ""
}

// toTitle upper-cases the first letter of each word
func toTitle(s string) string {
	prev := ' '
	return strings.Map(
		func(r rune) rune {
			if unicode.IsSpace(prev) || unicode.IsPunct(prev) {
				prev = r
				return unicode.ToTitle(r)
			}
			prev = r
			return r
		},
		s)
}
