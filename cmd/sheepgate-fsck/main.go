// Command sheepgate-fsck is an offline reconciliation tool: it walks
// every account, bucket, and onode volume reachable from the backing
// store's volume namespace and reports — without auto-repairing — three
// classes of orphaned state:
//
//   - dangling bucket child volumes (account no longer lists the bucket
//     that created them)
//   - leaked prepared-but-unfinished extents (internal/extent.Allocator
//     ledger has entries in its Reserved list)
//   - onodes cleared but not fully freed (name cleared, extent table
//     still non-empty)
//
// Output is YAML, for scriptability.
package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sheepgate/sheepgate/internal/account"
	"github.com/sheepgate/sheepgate/internal/bucket"
	"github.com/sheepgate/sheepgate/internal/clock"
	"github.com/sheepgate/sheepgate/internal/extent"
	"github.com/sheepgate/sheepgate/internal/object"
	"github.com/sheepgate/sheepgate/internal/store"
	"github.com/sheepgate/sheepgate/internal/store/memstore"
	"github.com/sheepgate/sheepgate/internal/wire"
)

// Report is the fsck tool's findings, serialized to YAML.
type Report struct {
	DanglingChildVolumes []string       `yaml:"dangling_child_volumes,omitempty"`
	LeakedExtents        []LeakedExtent `yaml:"leaked_extents,omitempty"`
	UnfreedOnodes        []UnfreedOnode `yaml:"unfreed_onodes,omitempty"`
}

// LeakedExtent names a bucket data volume holding a reserved-but-never-
// finished extent run.
type LeakedExtent struct {
	DataVolume string `yaml:"data_volume"`
	Start      uint32 `yaml:"start"`
	Count      uint32 `yaml:"count"`
}

// UnfreedOnode names an onode slot whose name was cleared by Delete but
// whose extent table still lists allocated runs.
type UnfreedOnode struct {
	OnodeVolume string `yaml:"onode_volume"`
	Index       uint32 `yaml:"index"`
	NrExtent    uint32 `yaml:"nr_extent"`
}

func main() {
	root := &cobra.Command{
		Use:   "sheepgate-fsck",
		Short: "audit a sheepgate backing store for orphaned state",
		RunE:  run,
	}
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	// A real deployment would dial the distributed-cluster wire-protocol
	// client; that client is out of scope for this repository, so this
	// audits the in-memory reference store. Plugging a real ObjectStore
	// in only requires satisfying internal/store.ObjectStore.
	s := memstore.New()

	report, err := Audit(ctx, s)
	if err != nil {
		return err
	}

	enc := yaml.NewEncoder(os.Stdout)
	defer enc.Close()
	return enc.Encode(report)
}

// Audit runs the three reconciliation passes against s and returns the
// accumulated findings.
func Audit(ctx context.Context, s store.ObjectStore) (Report, error) {
	names, err := s.ListVolumeNames(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("fsck: list volumes: %w", err)
	}

	accounts := make(map[string]bool)
	bucketVolumes := make(map[string]bool) // "acct/bucket" -> has an onode volume
	dataVolumes := make(map[string]string) // "acct/bucket/allocator" -> "acct/bucket"

	for _, name := range names {
		parts := strings.Split(name, "/")
		switch len(parts) {
		case 1:
			accounts[name] = true
		case 2:
			bucketVolumes[name] = true
		case 3:
			if parts[2] == "allocator" {
				dataVolumes[name] = parts[0] + "/" + parts[1]
			}
		}
	}

	clk := clock.Real()
	am := &account.Manager{Store: s, Clock: clk}
	bm := &bucket.Manager{Store: s, Clock: clk}
	om := &object.Manager{Store: s, Clock: clk}

	liveBuckets := make(map[string]bool) // "acct/bucket" still listed by its account
	for acctName := range accounts {
		if err := am.ListBuckets(ctx, acctName, func(bucketName string) error {
			liveBuckets[acctName+"/"+bucketName] = true
			return nil
		}); err != nil {
			return Report{}, fmt.Errorf("fsck: list buckets of %q: %w", acctName, err)
		}
	}

	var report Report

	for childName := range bucketVolumes {
		if !liveBuckets[childName] {
			report.DanglingChildVolumes = append(report.DanglingChildVolumes, childName)
		}
	}
	for dataName, childName := range dataVolumes {
		if !liveBuckets[childName] {
			report.DanglingChildVolumes = append(report.DanglingChildVolumes, dataName)
		}
	}
	sort.Strings(report.DanglingChildVolumes)

	for childName := range liveBuckets {
		parts := strings.SplitN(childName, "/", 2)
		rec, err := bm.Lookup(ctx, parts[0], parts[1])
		if err != nil {
			return Report{}, fmt.Errorf("fsck: lookup %q: %w", childName, err)
		}

		alloc := &extent.Allocator{Store: s, Vid: rec.DataVid}
		reserved, err := alloc.Reserved(ctx)
		if err != nil {
			return Report{}, fmt.Errorf("fsck: read allocator ledger of %q: %w", childName, err)
		}
		for _, r := range reserved {
			report.LeakedExtents = append(report.LeakedExtents, LeakedExtent{
				DataVolume: childName + "/allocator",
				Start:      r.Start,
				Count:      r.Count,
			})
		}

		if err := om.ScanOnodes(ctx, rec.OnodeVid, func(idx uint32, hdr wire.OnodeHeader) error {
			if hdr.Free() && hdr.Inlined == 0 && hdr.NrExtent > 0 {
				report.UnfreedOnodes = append(report.UnfreedOnodes, UnfreedOnode{
					OnodeVolume: childName,
					Index:       idx,
					NrExtent:    hdr.NrExtent,
				})
			}
			return nil
		}); err != nil {
			return Report{}, fmt.Errorf("fsck: scan onodes of %q: %w", childName, err)
		}
	}

	return report, nil
}
