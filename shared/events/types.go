package events

// Per-topic closed enumerations of the event types each consumer dispatches
// on. Every enum carries an explicit Unknown variant: consumers log and skip
// Unknown instead of failing, and adding a new type to a topic forces the
// switch statements over that enum to be revisited.

type UserEvent int

const (
	UserUnknown UserEvent = iota
	UserCreated
	UserUpdated
	UserDeleted
)

func ParseUserEvent(eventType string) UserEvent {
	switch eventType {
	case TypeUserCreated:
		return UserCreated
	case TypeUserUpdated:
		return UserUpdated
	case TypeUserDeleted:
		return UserDeleted
	default:
		return UserUnknown
	}
}

type CustomerEvent int

const (
	CustomerUnknown CustomerEvent = iota
	CustomerCreated
	CustomerUpdated
	CustomerDeleted
)

func ParseCustomerEvent(eventType string) CustomerEvent {
	switch eventType {
	case TypeCustomerCreated:
		return CustomerCreated
	case TypeCustomerUpdated:
		return CustomerUpdated
	case TypeCustomerDeleted:
		return CustomerDeleted
	default:
		return CustomerUnknown
	}
}

type SalesEvent int

const (
	SalesUnknown SalesEvent = iota
	MeetingCreated
	MeetingUpdated
	MeetingDeleted
	TaskCreated
	TaskUpdated
	TaskCompleted
	TaskDueSoon
)

func ParseSalesEvent(eventType string) SalesEvent {
	switch eventType {
	case TypeMeetingCreated:
		return MeetingCreated
	case TypeMeetingUpdated:
		return MeetingUpdated
	case TypeMeetingDeleted:
		return MeetingDeleted
	case TypeTaskCreated:
		return TaskCreated
	case TypeTaskUpdated:
		return TaskUpdated
	case TypeTaskCompleted:
		return TaskCompleted
	case TypeTaskDueSoon:
		return TaskDueSoon
	default:
		return SalesUnknown
	}
}

type ApprovalEvent int

const (
	ApprovalUnknown ApprovalEvent = iota
	ApprovalRequested
	ApprovalApproved
	ApprovalRejected
	ApprovalRecalled
)

func ParseApprovalEvent(eventType string) ApprovalEvent {
	switch eventType {
	case TypeApprovalRequested:
		return ApprovalRequested
	case TypeApprovalApproved:
		return ApprovalApproved
	case TypeApprovalRejected:
		return ApprovalRejected
	case TypeApprovalRecalled:
		return ApprovalRecalled
	default:
		return ApprovalUnknown
	}
}
