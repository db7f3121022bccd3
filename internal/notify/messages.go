package notify

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Тексты писем. Темы и тела повторяют принятый в компании тон.

func RequestSubmitted(requesterName, title, category string) (subject, body string) {
	subject = fmt.Sprintf("Request Submitted - %s", title)
	body = fmt.Sprintf(
		"Hello %s,\n\n"+
			"Your purchase request '%s' has been successfully submitted "+
			"and is now under review by your Head of Department.\n\n"+
			"Category: %s\n\n"+
			"You will receive updates as your request moves through the approval process.\n\n"+
			"Best regards,\nProcuraHub Team",
		requesterName, title, category)
	return subject, body
}

func RequestAwaitsHOD(hodName, title, requesterName, department string) (subject, body string) {
	subject = fmt.Sprintf("New Request for Review - %s", title)
	body = fmt.Sprintf(
		"Hello %s,\n\n"+
			"A new purchase request requires your review and approval.\n\n"+
			"Request: %s\nRequested by: %s\nDepartment: %s\n\n"+
			"Please log in to review and approve or reject this request.\n\n"+
			"Best regards,\nProcuraHub Team",
		hodName, title, requesterName, department)
	return subject, body
}

func RequestHODApproved(requesterName, title, approvedBy string) (subject, body string) {
	subject = fmt.Sprintf("HOD Approved - %s", title)
	body = fmt.Sprintf(
		"Hello %s,\n\n"+
			"Your purchase request '%s' has been approved by your Head of Department "+
			"and is now with the Procurement team for review.\n\n"+
			"Approved by: %s\n\n"+
			"Best regards,\nProcuraHub Team",
		requesterName, title, approvedBy)
	return subject, body
}

func RequestAwaitsProcurement(title, requesterName string) (subject, body string) {
	subject = fmt.Sprintf("New Request for Review - %s", title)
	body = fmt.Sprintf(
		"Procurement Team,\n\n"+
			"A purchase request has been approved by the Head of Department and requires your review.\n\n"+
			"Request: %s\nRequested by: %s\n\n"+
			"Please log in to review and process this request.\n\n"+
			"Best regards,\nProcuraHub Team",
		title, requesterName)
	return subject, body
}

func RequestRejected(requesterName, title, stage, reason string) (subject, body string) {
	subject = fmt.Sprintf("Request Rejected - %s", title)
	body = fmt.Sprintf(
		"Hello %s,\n\n"+
			"Your purchase request '%s' has been rejected at the %s review stage.\n\n"+
			"Reason: %s\n\n"+
			"Best regards,\nProcuraHub Team",
		requesterName, title, stage, reason)
	return subject, body
}

func RequestApproved(requesterName, title, approvedBy string) (subject, body string) {
	subject = fmt.Sprintf("Request Approved - %s", title)
	body = fmt.Sprintf(
		"Hello %s,\n\n"+
			"Your purchase request '%s' has been approved by procurement "+
			"and is ready for RFQ processing.\n\n"+
			"Approved by: %s\n\n"+
			"The procurement team will now create an RFQ and invite suppliers.\n\n"+
			"Best regards,\nProcuraHub Team",
		requesterName, title, approvedBy)
	return subject, body
}

func RFQInvitation(supplierName, rfqTitle, category string, deadline time.Time) (subject, body string) {
	subject = fmt.Sprintf("New RFQ Invitation: %s", rfqTitle)
	body = fmt.Sprintf(
		"Dear %s,\n\n"+
			"You have been invited to submit a quotation for RFQ '%s' in category '%s'.\n\n"+
			"Deadline: %s\n\n"+
			"Please log in to ProcuraHub to view full details and submit your quotation.\n\n"+
			"Best regards,\nProcuraHub Team",
		supplierName, rfqTitle, category, deadline.Format("January 02, 2006 15:04 UTC"))
	return subject, body
}

func QuotationSubmitted(staffName, supplierName, rfqTitle string) (subject, body string) {
	subject = fmt.Sprintf("New Quotation - %s", rfqTitle)
	body = fmt.Sprintf(
		"Hello %s,\n\n"+
			"A new quotation has been submitted:\n\n"+
			"Supplier: %s\nRFQ: %s\n\n"+
			"Please log in to review the quotation.\n\n"+
			"Best regards,\nProcuraHub Team",
		staffName, supplierName, rfqTitle)
	return subject, body
}

func QuotationApproved(supplierName, rfqTitle string, amount decimal.Decimal, currency string) (subject, body string) {
	subject = fmt.Sprintf("Quotation Approved - %s", rfqTitle)
	body = fmt.Sprintf(
		"Congratulations %s,\n\n"+
			"Your quotation for RFQ '%s' has been approved.\n\n"+
			"Awarded amount: %s %s\n\n"+
			"Our procurement team will be in touch shortly.\n\n"+
			"Best regards,\nProcuraHub Team",
		supplierName, rfqTitle, amount.StringFixed(2), currency)
	return subject, body
}

func QuotationRejected(supplierName, rfqTitle string) (subject, body string) {
	subject = fmt.Sprintf("RFQ Update - %s", rfqTitle)
	body = fmt.Sprintf(
		"Hello %s,\n\n"+
			"Thank you for submitting a quotation for RFQ '%s'. "+
			"After evaluation, another supplier has been selected for this award.\n\n"+
			"We appreciate your participation and encourage you to respond to future invitations.\n\n"+
			"Best regards,\nProcuraHub Team",
		supplierName, rfqTitle)
	return subject, body
}

func NewMessage(recipientName, senderName, supplierName, messageSubject, content string) (subject, body string) {
	subject = fmt.Sprintf("New Message: %s", messageSubject)
	body = fmt.Sprintf(
		"Hello %s,\n\n"+
			"You have received a new message from %s regarding %s.\n\n"+
			"Subject: %s\n\n"+
			"Message:\n%s\n\n"+
			"Please log in to ProcuraHub to view and respond to this message.\n\n"+
			"Best regards,\nProcuraHub Team",
		recipientName, senderName, supplierName, messageSubject, content)
	return subject, body
}

func SupplierAwarded(requesterName, rfqTitle, supplierName string) (subject, body string) {
	subject = fmt.Sprintf("Supplier Awarded - %s", rfqTitle)
	body = fmt.Sprintf(
		"Hello %s,\n\n"+
			"Procurement has awarded RFQ '%s' to %s.\n\n"+
			"You'll receive follow-up communication with the next steps.\n\n"+
			"Best regards,\nProcuraHub Team",
		requesterName, rfqTitle, supplierName)
	return subject, body
}
