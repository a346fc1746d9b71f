package store

// SaveSummary writes the denormalized index entry for an interaction.
func SaveSummary(project, id string, data []byte) error {
	return set("index:"+project+":"+id, data)
}

// GetSummary returns the index entry for an interaction.
func GetSummary(project, id string) ([]byte, error) {
	return get("index:" + project + ":" + id)
}

// DeleteSummary removes the index entry for an interaction.
func DeleteSummary(project, id string) error {
	return del("index:" + project + ":" + id)
}

// ListSummaries returns all index entries for a project in key order.
func ListSummaries(project string) ([]string, error) {
	return listPrefix("index:"+project+":", 0)
}
