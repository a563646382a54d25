package trace

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/hyperjump/qexpand/internal/invindex"
	"github.com/hyperjump/qexpand/internal/models"
	"go.uber.org/zap"
)

// IndexFile is the name of the inverted index dump.
const IndexFile = "invertedIndex.txt"

const separator = "==========="

// FileSink writes each snapshot to a text file in Dir, replacing the previous round's
// file of the same kind: invertedIndex.txt, termWeight.txt, rocchioResults.txt and
// rocchioExtendedResults.txt. A session-scoped sink writes into Dir/<session id>.
type FileSink struct {
	Dir    string
	logger *zap.Logger
}

// NewFileSink returns a sink writing into dir. A nil logger is silent.
func NewFileSink(dir string, logger *zap.Logger) *FileSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileSink{Dir: dir, logger: logger}
}

// ForSession returns a sink writing into the session's own subdirectory of Dir.
func (f *FileSink) ForSession(id string) Sink {
	if id == "" {
		return f
	}
	return &FileSink{Dir: filepath.Join(f.Dir, id), logger: f.logger}
}

// Index implements Sink.
func (f *FileSink) Index(round int, idx *invindex.Index) {
	f.write(IndexFile, round, func(w *bufio.Writer) {
		term := ""
		for i, e := range idx.Entries() {
			if i == 0 || e.Term != term {
				if i > 0 {
					fmt.Fprintln(w)
				}
				term = e.Term
				fmt.Fprintln(w, separator)
				fmt.Fprintf(w, "%s=", term)
			} else {
				fmt.Fprint(w, " ")
			}
			fmt.Fprintf(w, "%d:%v", e.DocID, e.Positions)
		}
		if len(idx.Postings) > 0 {
			fmt.Fprintln(w)
		}
	})
}

// Weights implements Sink.
func (f *FileSink) Weights(round int, kind string, weights []models.Weight) {
	f.write(kind+".txt", round, func(w *bufio.Writer) {
		for _, wt := range weights {
			fmt.Fprintln(w, separator)
			fmt.Fprintln(w, wt.Term)
			fmt.Fprintln(w, strconv.FormatFloat(wt.Score, 'g', -1, 64))
		}
	})
}

func (f *FileSink) write(name string, round int, body func(w *bufio.Writer)) {
	path := filepath.Join(f.Dir, name)
	if err := os.MkdirAll(f.Dir, 0755); err != nil {
		f.logger.Warn("failed to create trace directory", zap.String("dir", f.Dir), zap.Error(err))
		return
	}
	file, err := os.Create(path)
	if err != nil {
		f.logger.Warn("failed to create trace file", zap.String("path", path), zap.Error(err))
		return
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	fmt.Fprintf(w, "# round %d\n", round)
	body(w)
	if err := w.Flush(); err != nil {
		f.logger.Warn("failed to write trace file", zap.String("path", path), zap.Error(err))
	}
}
