package store

import (
	"strings"

	"colloquy/pkg/logger"
)

// Key layout:
//
//	interaction:<id>:meta                     versioned metadata JSON
//	interaction:<id>:msg:<ts>-<seq>           append-only message log
//	interaction:<id>:change:<ts>-<seq>        append-only change log
//	interaction:<id>:res:<rid>@<rev>          resource metadata table
//	interaction:<id>:objectives               objectives snapshot
//	interaction:<id>:usage:<type>:<ts>-<seq>  usage ledger partitions
//	interaction:<id>:pending                  partial-save marker
//	resource:rev:<rid>@<rev>                  revision content store
//	index:<project>:<id>                      denormalized summary

func metaKey(id string) string    { return "interaction:" + id + ":meta" }
func pendingKey(id string) string { return "interaction:" + id + ":pending" }

// SaveInteractionMeta writes the versioned metadata record.
func SaveInteractionMeta(id string, data []byte) error {
	if err := set(metaKey(id), data); err != nil {
		logger.Error("save_interaction_meta_failed", "interaction", id, "error", err)
		return err
	}
	return nil
}

// GetInteractionMeta returns the stored metadata JSON. IsNotFound on the
// returned error distinguishes a missing interaction.
func GetInteractionMeta(id string) ([]byte, error) {
	return get(metaKey(id))
}

// AppendMessage appends a message record to the interaction's log and
// returns the assigned key.
func AppendMessage(id string, data []byte) (string, error) {
	key := "interaction:" + id + ":msg:" + ordinal()
	if err := set(key, data); err != nil {
		logger.Error("append_message_failed", "interaction", id, "key", key, "error", err)
		return "", err
	}
	return key, nil
}

// ListMessages returns all message records for an interaction in
// insertion order. An optional limit caps the count.
func ListMessages(id string, limit ...int) ([]string, error) {
	max := 0
	if len(limit) > 0 {
		max = limit[0]
	}
	return listPrefix("interaction:"+id+":msg:", max)
}

// AppendChange appends a compact change record (statement count, version,
// timestamp) to the per-interaction change log.
func AppendChange(id string, data []byte) error {
	return set("interaction:"+id+":change:"+ordinal(), data)
}

// ListChanges returns the interaction's change log in order.
func ListChanges(id string) ([]string, error) {
	return listPrefix("interaction:"+id+":change:", 0)
}

// SaveResourceMeta stores resource metadata under its (resource, revision)
// key for the interaction.
func SaveResourceMeta(id, revKey string, data []byte) error {
	return set("interaction:"+id+":res:"+revKey, data)
}

// DeleteResourceMeta removes one resource-metadata entry.
func DeleteResourceMeta(id, revKey string) error {
	return del("interaction:" + id + ":res:" + revKey)
}

// ListResourceMeta returns all resource-metadata records for an interaction.
func ListResourceMeta(id string) ([]string, error) {
	return listPrefix("interaction:"+id+":res:", 0)
}

// SaveObjectives stores the objectives snapshot.
func SaveObjectives(id string, data []byte) error {
	return set("interaction:"+id+":objectives", data)
}

// GetObjectives returns the objectives snapshot, or IsNotFound error.
func GetObjectives(id string) ([]byte, error) {
	return get("interaction:" + id + ":objectives")
}

// AppendUsage appends a usage record to the interaction's partition for
// the given interaction type ("conversation" or "chat").
func AppendUsage(id, typ string, data []byte) error {
	return set("interaction:"+id+":usage:"+typ+":"+ordinal(), data)
}

// ListUsage returns the usage records of one partition in append order.
func ListUsage(id, typ string) ([]string, error) {
	return listPrefix("interaction:"+id+":usage:"+typ+":", 0)
}

// ListUsageKeys returns the keys of one usage partition; migration
// rewrites records in place through SaveKey.
func ListUsageKeys(id, typ string) ([]string, error) {
	return ListKeys("interaction:" + id + ":usage:" + typ + ":")
}

// SetPending writes the partial-save marker for an interaction.
func SetPending(id string) error {
	return set(pendingKey(id), []byte("1"))
}

// ClearPending removes the partial-save marker.
func ClearPending(id string) error {
	return del(pendingKey(id))
}

// HasPending reports whether a save was started but never completed.
func HasPending(id string) bool {
	_, err := get(pendingKey(id))
	return err == nil
}

// DeleteInteraction removes every durable record under the interaction's
// prefix. The project index entry is managed separately so sibling
// interactions sharing a parent link are unaffected.
func DeleteInteraction(id string) error {
	keys, err := ListKeys("interaction:" + id + ":")
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := del(k); err != nil {
			logger.Error("delete_interaction_key_failed", "interaction", id, "key", k, "error", err)
			return err
		}
	}
	logger.Info("interaction_deleted", "interaction", id, "keys", len(keys))
	return nil
}

// ListInteractionIDs returns the IDs of every interaction with a
// metadata record in the store.
func ListInteractionIDs() ([]string, error) {
	keys, err := ListKeys("interaction:")
	if err != nil {
		return nil, err
	}
	var out []string
	for _, k := range keys {
		if !strings.HasSuffix(k, ":meta") {
			continue
		}
		id := strings.TrimSuffix(strings.TrimPrefix(k, "interaction:"), ":meta")
		out = append(out, id)
	}
	return out, nil
}
