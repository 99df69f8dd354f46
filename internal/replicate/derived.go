package replicate

import (
	"context"
	"encoding/hex"
	"fmt"

	"cellenics/internal/entitymodel"
	"cellenics/internal/errs"
	"cellenics/internal/table"
	"cellenics/internal/table/core"

	"lukechampine.com/blake3"
)

// paramsHashPath is where the pipeline stores the hash of the inputs it last ran on.
var paramsHashPath = []string{"meta", "gem2s", "paramsHash"}

// ParamsHash fingerprints the pipeline inputs of an experiment: the project
// and sample documents it was built from. Ids inside them are hashed as
// stored, so a clone hashes differently from its original.
func ParamsHash(experiment, project, samples table.Record) (string, error) {
	input := core.Record{
		"experimentId": experiment["experimentId"],
		"projectId":    experiment["projectId"],
		"project":      project["projects"],
		"samples":      samples["samples"],
	}
	data, err := core.MarshalRecord(input)
	if err != nil {
		return "", err
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// setPath stores value at the nested field path of rec, creating maps as needed.
func setPath(rec table.Record, path []string, value any) {
	cur := map[string]any(rec)
	for _, name := range path[:len(path)-1] {
		next, ok := cur[name].(map[string]any)
		if !ok {
			if r, isRec := cur[name].(core.Record); isRec {
				next = r
			} else {
				next = map[string]any{}
				cur[name] = next
			}
		}
		cur = next
	}
	cur[path[len(path)-1]] = value
}

// derive recomputes the params hash of a cloned root from the records written
// to the destination, so the clone does not trigger a pipeline rerun.
func (c *Coordinator) derive(ctx context.Context, dest table.Store, destEnv, rootID string, ns Namespace) CloneRecord {
	cat := c.catalog
	rootEnt, _ := cat.Entity(cat.Root())
	projEnt, _ := cat.Entity(entitymodel.Project)
	sampleEnt, _ := cat.Entity(entitymodel.Sample)
	clonedID := RewriteID(rootID, ns)
	expTable := c.Name(rootEnt.Table, destEnv)
	rec := CloneRecord{
		Kind:   KindDerived,
		Entity: string(rootEnt.Type),
		RootID: rootID,
		Source: Location{expTable, clonedID},
		Target: Location{expTable, clonedID + "#meta.gem2s.paramsHash"},
	}
	fail := func(err error) CloneRecord {
		c.log.Error("recomputing params hash failed", "table", expTable, "root_id", rootID, "error", err)
		rec.Outcome, rec.Err = Failed, err
		return rec
	}

	experiment, found, err := dest.GetItem(ctx, expTable, table.Record{rootEnt.Key.Partition: clonedID})
	if err != nil {
		return fail(errs.WrapTransient(err, "read "+expTable))
	}
	if !found {
		return fail(fmt.Errorf("cloned %s %s: %w", rootEnt.Type, clonedID, errs.ErrNotFound))
	}
	projectPath, _ := cat.OwnerPath(entitymodel.Project)
	projectIDs := projectPath.Collect(experiment)
	if len(projectIDs) != 1 {
		return fail(fmt.Errorf("cloned %s %s references %d projects: %w", rootEnt.Type, clonedID, len(projectIDs), errs.ErrNotFound))
	}
	projTable := c.Name(projEnt.Table, destEnv)
	project, found, err := dest.GetItem(ctx, projTable, table.Record{projEnt.Key.Partition: projectIDs[0]})
	if err != nil {
		return fail(errs.WrapTransient(err, "read "+projTable))
	}
	if !found {
		return fail(fmt.Errorf("cloned project %s: %w", projectIDs[0], errs.ErrNotFound))
	}
	sampleTable := c.Name(sampleEnt.Table, destEnv)
	samples, _, err := dest.GetItem(ctx, sampleTable, table.Record{sampleEnt.Key.Partition: clonedID})
	if err != nil {
		return fail(errs.WrapTransient(err, "read "+sampleTable))
	}

	hash, err := ParamsHash(experiment, project, samples)
	if err != nil {
		return fail(err)
	}
	setPath(experiment, paramsHashPath, hash)
	if err := dest.BatchWrite(ctx, expTable, []table.Record{experiment}); err != nil {
		return fail(errs.WrapTransient(err, "write "+expTable))
	}
	rec.Outcome = Copied
	return rec
}
