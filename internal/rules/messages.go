package rules

// MessageStatus — статус сообщения в переписке с поставщиком
type MessageStatus string

const (
	MessageSent MessageStatus = "sent"
	MessageRead MessageStatus = "read"
)

// CanMessageSuppliers — переписка с поставщиками со стороны персонала
func CanMessageSuppliers(role Role) bool {
	return roleIn(role, RoleProcurement, RoleProcurementOfficer, RoleAdmin)
}
