package schema

// Core field names carried by every persisted entity
const (
	FieldID        = "id"
	FieldCreatedAt = "created_at"
	FieldUpdatedAt = "updated_at"
	FieldDeletedAt = "deleted_at"
	FieldCreatedBy = "created_by"
	FieldUpdatedBy = "updated_by"
	FieldDeletedBy = "deleted_by"

	FieldCreatedByName = "created_by_name"
	FieldUpdatedByName = "updated_by_name"
	FieldDeletedByName = "deleted_by_name"
)

// AuditFields lists the six engine-managed audit columns
var AuditFields = []string{
	FieldCreatedAt,
	FieldCreatedBy,
	FieldUpdatedAt,
	FieldUpdatedBy,
	FieldDeletedAt,
	FieldDeletedBy,
}

// IsAuditField returns true if name is one of the engine-managed audit columns
func IsAuditField(name string) bool {
	for _, f := range AuditFields {
		if f == name {
			return true
		}
	}
	return false
}

// CoreFieldMetadata returns the raw metadata of the fields injected into every entity.
// A fresh map is returned on each call so callers may merge into it.
func CoreFieldMetadata() map[string]interface{} {
	return map[string]interface{}{
		FieldID: map[string]interface{}{
			"name":                FieldID,
			"type":                "ID",
			"label":               "ID",
			"required":            true,
			"unique":              true,
			"readOnlyAfterCreate": true,
		},
		FieldCreatedAt: auditTimestamp(FieldCreatedAt, "Created At"),
		FieldUpdatedAt: auditTimestamp(FieldUpdatedAt, "Updated At"),
		FieldDeletedAt: auditTimestamp(FieldDeletedAt, "Deleted At"),
		FieldCreatedBy: auditActor(FieldCreatedBy, "Created By"),
		FieldUpdatedBy: auditActor(FieldUpdatedBy, "Updated By"),
		FieldDeletedBy: auditActor(FieldDeletedBy, "Deleted By"),

		FieldCreatedByName: displayName(FieldCreatedByName, "Created By"),
		FieldUpdatedByName: displayName(FieldUpdatedByName, "Updated By"),
		FieldDeletedByName: displayName(FieldDeletedByName, "Deleted By"),
	}
}

func auditTimestamp(name, label string) map[string]interface{} {
	return map[string]interface{}{
		"name":     name,
		"type":     "DateTime",
		"label":    label,
		"readOnly": true,
		"nullable": true,
	}
}

func auditActor(name, label string) map[string]interface{} {
	return map[string]interface{}{
		"name":     name,
		"type":     "ID",
		"label":    label,
		"readOnly": true,
		"nullable": true,
	}
}

func displayName(name, label string) map[string]interface{} {
	return map[string]interface{}{
		"name":      name,
		"type":      "Text",
		"label":     label,
		"readOnly":  true,
		"nullable":  true,
		"isDBField": false,
	}
}
