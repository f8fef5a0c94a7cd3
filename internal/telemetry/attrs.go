package telemetry

import "go.opentelemetry.io/otel/attribute"

func attrArchiveID(id string) attribute.KeyValue {
	return attribute.String("splitstore.archive_id", id)
}

func attrMode(mode string) attribute.KeyValue {
	return attribute.String("splitstore.restore_mode", mode)
}

func attrPartIndex(index int) attribute.KeyValue {
	return attribute.Int("splitstore.part_index", index)
}
