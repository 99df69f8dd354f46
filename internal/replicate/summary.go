package replicate

import (
	"fmt"
	"io"
	"text/tabwriter"
)

// Kind tells which boundary a clone record belongs to.
type Kind string

const (
	KindBlob    Kind = "blob"
	KindRecord  Kind = "record"
	KindDerived Kind = "derived"
)

// Outcome is the result of one attempted copy.
type Outcome string

const (
	Copied       Outcome = "copied"
	SkippedEqual Outcome = "skipped-equal"
	Failed       Outcome = "failed"
)

// Location addresses a blob object (container and key) or a table record
// (table and rendered key).
type Location struct {
	Container string `json:"container"`
	Key       string `json:"key"`
}

func (l Location) String() string { return l.Container + "/" + l.Key }

// CloneRecord reports one attempted copy.
type CloneRecord struct {
	Kind    Kind     `json:"kind"`
	Entity  string   `json:"entity"`
	RootID  string   `json:"root_id"`
	Source  Location `json:"source"`
	Target  Location `json:"target"`
	Outcome Outcome  `json:"outcome"`
	Err     error    `json:"-"`
}

// Counts tallies outcomes.
type Counts struct {
	Copied  int
	Skipped int
	Failed  int
}

// Summary is the report of one replication run.
type Summary struct {
	Namespace   Namespace
	Origin      string
	Destination string
	Records     []CloneRecord
}

// Add appends records to the summary.
func (s *Summary) Add(recs ...CloneRecord) { s.Records = append(s.Records, recs...) }

// Counts tallies the outcomes of all records.
func (s *Summary) Counts() Counts {
	var c Counts
	for _, r := range s.Records {
		switch r.Outcome {
		case Copied:
			c.Copied++
		case SkippedEqual:
			c.Skipped++
		case Failed:
			c.Failed++
		}
	}
	return c
}

// Failed returns the records that failed.
func (s *Summary) Failed() []CloneRecord {
	var out []CloneRecord
	for _, r := range s.Records {
		if r.Outcome == Failed {
			out = append(out, r)
		}
	}
	return out
}

// Touched returns the target locations that now hold cloned content, in
// record order.
func (s *Summary) Touched() []Location {
	var out []Location
	seen := map[Location]bool{}
	for _, r := range s.Records {
		if r.Outcome == Failed || seen[r.Target] {
			continue
		}
		seen[r.Target] = true
		out = append(out, r.Target)
	}
	return out
}

// Render writes a table of every record followed by the totals.
func (s *Summary) Render(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tENTITY\tROOT\tSOURCE\tTARGET\tOUTCOME")
	for _, r := range s.Records {
		outcome := string(r.Outcome)
		if r.Err != nil {
			outcome += ": " + r.Err.Error()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", r.Kind, r.Entity, r.RootID, r.Source, r.Target, outcome)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	c := s.Counts()
	_, err := fmt.Fprintf(w, "\n%s -> %s as %q: %d copied, %d skipped (already equal), %d failed\n",
		s.Origin, s.Destination, s.Namespace, c.Copied, c.Skipped, c.Failed)
	return err
}
