package handlers

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"procurahub/db"
	"procurahub/internal/rules"
)

type StorageInterface interface {
	CreateUser(ctx context.Context, u *db.User) error
	GetUser(ctx context.Context, id int) (*db.User, error)
	GetUserByEmail(ctx context.Context, email string) (*db.User, error)
	CountUsers(ctx context.Context) (int, error)
	ListUsersByRoles(ctx context.Context, roles []rules.Role) ([]db.User, error)

	CreateDepartment(ctx context.Context, d *db.Department) error
	GetDepartment(ctx context.Context, id int) (*db.Department, error)
	ListDepartments(ctx context.Context) ([]db.Department, error)
	SetDepartmentHead(ctx context.Context, departmentID int, headID *int) error

	CreateCategory(ctx context.Context, c *db.ProcurementCategory) error
	GetCategoryByName(ctx context.Context, name string) (*db.ProcurementCategory, error)
	ListCategories(ctx context.Context) ([]db.ProcurementCategory, error)

	CreateRequest(ctx context.Context, r *db.PurchaseRequest) error
	GetRequest(ctx context.Context, id int) (*db.PurchaseRequest, error)
	UpdateRequest(ctx context.Context, r *db.PurchaseRequest) error
	ListRequestsByRequester(ctx context.Context, requesterID, limit, offset int) ([]db.PurchaseRequest, error)
	ListRequests(ctx context.Context, departmentID *int, limit, offset int) ([]db.PurchaseRequest, error)

	NextSupplierNumber(ctx context.Context, now time.Time) (string, error)
	CreateSupplier(ctx context.Context, p *db.SupplierProfile, categories []string) error
	GetSupplier(ctx context.Context, id int) (*db.SupplierProfile, error)
	GetSupplierByUserID(ctx context.Context, userID int) (*db.SupplierProfile, error)
	ListSuppliers(ctx context.Context) ([]db.SupplierProfile, error)
	ListSuppliersByCategory(ctx context.Context, category string) ([]db.SupplierProfile, error)
	GetSupplierCategories(ctx context.Context, supplierID int) ([]string, error)

	CreateRFQ(ctx context.Context, r *db.RFQ) error
	IssueRFQForRequest(ctx context.Context, r *db.PurchaseRequest, rfq *db.RFQ) error
	GetRFQ(ctx context.Context, id int) (*db.RFQ, error)
	UpdateRFQStatus(ctx context.Context, id int, status rules.RFQStatus) error
	ListRFQs(ctx context.Context, includeDrafts bool, limit, offset int) ([]db.RFQ, error)
	ListRFQsForSupplier(ctx context.Context, supplierID, limit, offset int) ([]db.RFQ, error)
	CloseExpiredRFQs(ctx context.Context, now time.Time) (int, error)

	GetInvitation(ctx context.Context, rfqID, supplierID int) (*db.RFQInvitation, error)
	ListInvitationsForRFQ(ctx context.Context, rfqID int) ([]db.RFQInvitation, error)
	ListInvitedSupplierIDs(ctx context.Context, rfqID int) (map[int]bool, error)
	CreateInvitations(ctx context.Context, rfqID int, supplierIDs []int, now time.Time) ([]int, error)

	AddRFQDocument(ctx context.Context, d *db.RFQDocument) error
	ListRFQDocuments(ctx context.Context, rfqID int) ([]db.RFQDocument, error)

	UpsertQuotation(ctx context.Context, q *db.Quotation) error
	GetQuotation(ctx context.Context, rfqID, quotationID int) (*db.Quotation, error)
	ListQuotationsForRFQ(ctx context.Context, rfqID int) ([]db.Quotation, error)
	SetQuotationPendingFinance(ctx context.Context, quotationID, requestedByID int, justification string) error
	RejectQuotation(ctx context.Context, quotationID int) error
	AwardQuotation(ctx context.Context, rfqID, quotationID, approverID int, addToTotal decimal.Decimal) (*db.AwardResult, error)
	MarkQuotationDelivered(ctx context.Context, quotationID, markedByID int, noteRef, noteName *string) error

	CreateMessage(ctx context.Context, m *db.Message) error
	GetMessage(ctx context.Context, id int) (*db.Message, error)
	ListReceivedMessages(ctx context.Context, recipientID int) ([]db.Message, error)
	ListSentMessages(ctx context.Context, senderID int) ([]db.Message, error)
	ListSupplierConversation(ctx context.Context, supplierID, userID int) ([]db.Message, error)
	MarkMessageRead(ctx context.Context, messageID, recipientID int, now time.Time) error
}
