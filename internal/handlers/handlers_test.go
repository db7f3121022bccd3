package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"procurahub/db"
	"procurahub/internal/apperror"
	"procurahub/internal/auth"
	"procurahub/internal/docstore"
	"procurahub/internal/handlers"
	"procurahub/internal/handlers/testutils"
	"procurahub/internal/rules"
)

// MockStorage реализует StorageInterface в памяти
type MockStorage struct {
	users       map[int]*db.User
	departments map[int]*db.Department
	categories  map[string]*db.ProcurementCategory
	requests    map[int]*db.PurchaseRequest
	suppliers   map[int]*db.SupplierProfile
	rfqs        map[int]*db.RFQ
	invitations map[int]map[int]*db.RFQInvitation // rfqID -> supplierID
	quotations  map[int]*db.Quotation
	documents   []db.RFQDocument
	messages    map[int]*db.Message

	nextID         int
	supplierSerial int
}

func NewMockStorage() *MockStorage {
	return &MockStorage{
		users:       map[int]*db.User{},
		departments: map[int]*db.Department{},
		categories:  map[string]*db.ProcurementCategory{},
		requests:    map[int]*db.PurchaseRequest{},
		suppliers:   map[int]*db.SupplierProfile{},
		rfqs:        map[int]*db.RFQ{},
		invitations: map[int]map[int]*db.RFQInvitation{},
		quotations:  map[int]*db.Quotation{},
		messages:    map[int]*db.Message{},
		nextID:      100,
	}
}

func (m *MockStorage) id() int {
	m.nextID++
	return m.nextID
}

func (m *MockStorage) CreateUser(ctx context.Context, u *db.User) error {
	u.ID = m.id()
	u.CreatedAt = time.Now()
	m.users[u.ID] = u
	return nil
}

func (m *MockStorage) GetUser(ctx context.Context, id int) (*db.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, apperror.NotFound("user not found")
	}
	return u, nil
}

func (m *MockStorage) GetUserByEmail(ctx context.Context, email string) (*db.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, apperror.NotFound("user not found")
}

func (m *MockStorage) CountUsers(ctx context.Context) (int, error) {
	return len(m.users), nil
}

func (m *MockStorage) ListUsersByRoles(ctx context.Context, roles []rules.Role) ([]db.User, error) {
	var out []db.User
	for _, u := range m.users {
		for _, role := range roles {
			if u.Role == role {
				out = append(out, *u)
			}
		}
	}
	return out, nil
}

func (m *MockStorage) CreateDepartment(ctx context.Context, d *db.Department) error {
	d.ID = m.id()
	m.departments[d.ID] = d
	return nil
}

func (m *MockStorage) GetDepartment(ctx context.Context, id int) (*db.Department, error) {
	d, ok := m.departments[id]
	if !ok {
		return nil, apperror.NotFound("department not found")
	}
	return d, nil
}

func (m *MockStorage) ListDepartments(ctx context.Context) ([]db.Department, error) {
	var out []db.Department
	for _, d := range m.departments {
		out = append(out, *d)
	}
	return out, nil
}

func (m *MockStorage) SetDepartmentHead(ctx context.Context, departmentID int, headID *int) error {
	d, ok := m.departments[departmentID]
	if !ok {
		return apperror.NotFound("department not found")
	}
	d.HeadOfDepartmentID = headID
	return nil
}

func (m *MockStorage) CreateCategory(ctx context.Context, c *db.ProcurementCategory) error {
	c.ID = m.id()
	m.categories[c.Name] = c
	return nil
}

func (m *MockStorage) GetCategoryByName(ctx context.Context, name string) (*db.ProcurementCategory, error) {
	c, ok := m.categories[name]
	if !ok {
		return nil, apperror.NotFound("category not found")
	}
	return c, nil
}

func (m *MockStorage) ListCategories(ctx context.Context) ([]db.ProcurementCategory, error) {
	var out []db.ProcurementCategory
	for _, c := range m.categories {
		out = append(out, *c)
	}
	return out, nil
}

func (m *MockStorage) CreateRequest(ctx context.Context, r *db.PurchaseRequest) error {
	r.ID = m.id()
	r.CreatedAt = time.Now()
	m.requests[r.ID] = r
	return nil
}

func (m *MockStorage) GetRequest(ctx context.Context, id int) (*db.PurchaseRequest, error) {
	r, ok := m.requests[id]
	if !ok {
		return nil, apperror.NotFound("purchase request not found")
	}
	cp := *r
	return &cp, nil
}

func (m *MockStorage) UpdateRequest(ctx context.Context, r *db.PurchaseRequest) error {
	if _, ok := m.requests[r.ID]; !ok {
		return apperror.NotFound("purchase request not found")
	}
	cp := *r
	m.requests[r.ID] = &cp
	return nil
}

func (m *MockStorage) ListRequestsByRequester(ctx context.Context, requesterID, limit, offset int) ([]db.PurchaseRequest, error) {
	var out []db.PurchaseRequest
	for _, r := range m.requests {
		if r.RequesterID == requesterID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *MockStorage) ListRequests(ctx context.Context, departmentID *int, limit, offset int) ([]db.PurchaseRequest, error) {
	var out []db.PurchaseRequest
	for _, r := range m.requests {
		if departmentID == nil || r.DepartmentID == *departmentID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *MockStorage) NextSupplierNumber(ctx context.Context, now time.Time) (string, error) {
	m.supplierSerial++
	return fmt.Sprintf("SUP-%s-%04d", now.Format("20060102"), m.supplierSerial), nil
}

func (m *MockStorage) CreateSupplier(ctx context.Context, p *db.SupplierProfile, categories []string) error {
	p.ID = m.id()
	m.suppliers[p.ID] = p
	return nil
}

func (m *MockStorage) GetSupplier(ctx context.Context, id int) (*db.SupplierProfile, error) {
	p, ok := m.suppliers[id]
	if !ok {
		return nil, apperror.NotFound("supplier not found")
	}
	return p, nil
}

func (m *MockStorage) GetSupplierByUserID(ctx context.Context, userID int) (*db.SupplierProfile, error) {
	for _, p := range m.suppliers {
		if p.UserID == userID {
			return p, nil
		}
	}
	return nil, apperror.NotFound("supplier not found")
}

func (m *MockStorage) ListSuppliers(ctx context.Context) ([]db.SupplierProfile, error) {
	var out []db.SupplierProfile
	for _, p := range m.suppliers {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MockStorage) ListSuppliersByCategory(ctx context.Context, category string) ([]db.SupplierProfile, error) {
	// Мок не хранит теги категорий, фильтрация проверяется в тестах планировщика
	return m.ListSuppliers(ctx)
}

func (m *MockStorage) GetSupplierCategories(ctx context.Context, supplierID int) ([]string, error) {
	return nil, nil
}

func (m *MockStorage) CreateRFQ(ctx context.Context, r *db.RFQ) error {
	r.ID = m.id()
	r.RFQNumber = db.GenerateRFQNumber(r.ID, time.Now())
	r.CreatedAt = time.Now()
	m.rfqs[r.ID] = r
	return nil
}

func (m *MockStorage) IssueRFQForRequest(ctx context.Context, r *db.PurchaseRequest, rfq *db.RFQ) error {
	if err := m.CreateRFQ(ctx, rfq); err != nil {
		return err
	}
	r.RFQID = &rfq.ID
	return m.UpdateRequest(ctx, r)
}

func (m *MockStorage) GetRFQ(ctx context.Context, id int) (*db.RFQ, error) {
	r, ok := m.rfqs[id]
	if !ok {
		return nil, apperror.NotFound("RFQ not found")
	}
	cp := *r
	return &cp, nil
}

func (m *MockStorage) UpdateRFQStatus(ctx context.Context, id int, status rules.RFQStatus) error {
	r, ok := m.rfqs[id]
	if !ok {
		return apperror.NotFound("RFQ not found")
	}
	r.Status = status
	return nil
}

func (m *MockStorage) ListRFQs(ctx context.Context, includeDrafts bool, limit, offset int) ([]db.RFQ, error) {
	var out []db.RFQ
	for _, r := range m.rfqs {
		if !includeDrafts && r.Status == rules.RFQDraft {
			continue
		}
		out = append(out, *r)
	}
	return out, nil
}

func (m *MockStorage) ListRFQsForSupplier(ctx context.Context, supplierID, limit, offset int) ([]db.RFQ, error) {
	var out []db.RFQ
	for rfqID, bySupplier := range m.invitations {
		if _, ok := bySupplier[supplierID]; ok {
			out = append(out, *m.rfqs[rfqID])
		}
	}
	return out, nil
}

func (m *MockStorage) CloseExpiredRFQs(ctx context.Context, now time.Time) (int, error) {
	n := 0
	for _, r := range m.rfqs {
		if rules.ShouldCloseRFQ(r.Status, r.Deadline, now) {
			r.Status = rules.RFQClosed
			n++
		}
	}
	return n, nil
}

func (m *MockStorage) GetInvitation(ctx context.Context, rfqID, supplierID int) (*db.RFQInvitation, error) {
	if inv, ok := m.invitations[rfqID][supplierID]; ok {
		return inv, nil
	}
	return nil, apperror.NotFound("invitation not found")
}

func (m *MockStorage) ListInvitationsForRFQ(ctx context.Context, rfqID int) ([]db.RFQInvitation, error) {
	var out []db.RFQInvitation
	for _, inv := range m.invitations[rfqID] {
		out = append(out, *inv)
	}
	return out, nil
}

func (m *MockStorage) ListInvitedSupplierIDs(ctx context.Context, rfqID int) (map[int]bool, error) {
	invited := map[int]bool{}
	for supplierID := range m.invitations[rfqID] {
		invited[supplierID] = true
	}
	return invited, nil
}

func (m *MockStorage) CreateInvitations(ctx context.Context, rfqID int, supplierIDs []int, now time.Time) ([]int, error) {
	if m.invitations[rfqID] == nil {
		m.invitations[rfqID] = map[int]*db.RFQInvitation{}
	}
	var invited []int
	for _, supplierID := range supplierIDs {
		if _, ok := m.invitations[rfqID][supplierID]; ok {
			continue
		}
		m.invitations[rfqID][supplierID] = &db.RFQInvitation{
			ID: m.id(), RFQID: rfqID, SupplierID: supplierID,
			InvitedAt: now, Status: rules.InvitationInvited,
		}
		p := m.suppliers[supplierID]
		p.InvitationsSent++
		t := now
		p.LastInvitedAt = &t
		invited = append(invited, supplierID)
	}
	return invited, nil
}

func (m *MockStorage) AddRFQDocument(ctx context.Context, d *db.RFQDocument) error {
	d.ID = m.id()
	d.UploadedAt = time.Now()
	m.documents = append(m.documents, *d)
	return nil
}

func (m *MockStorage) ListRFQDocuments(ctx context.Context, rfqID int) ([]db.RFQDocument, error) {
	var out []db.RFQDocument
	for _, d := range m.documents {
		if d.RFQID == rfqID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *MockStorage) UpsertQuotation(ctx context.Context, q *db.Quotation) error {
	for _, existing := range m.quotations {
		if existing.RFQID == q.RFQID && existing.SupplierID == q.SupplierID {
			q.ID = existing.ID
			if q.DocumentRef == nil {
				q.DocumentRef = existing.DocumentRef
				q.DocumentName = existing.DocumentName
			}
			break
		}
	}
	if q.ID == 0 {
		q.ID = m.id()
	}
	q.Status = rules.QuotationSubmitted
	q.SubmittedAt = time.Now()
	q.ApprovedAt = nil
	q.ApprovedByID = nil
	q.BudgetOverrideJustification = nil
	q.FinanceRequestedAt = nil
	q.FinanceRequestedByID = nil
	cp := *q
	m.quotations[q.ID] = &cp
	if inv, ok := m.invitations[q.RFQID][q.SupplierID]; ok {
		inv.Status = rules.InvitationResponded
		now := time.Now()
		inv.RespondedAt = &now
	}
	return nil
}

func (m *MockStorage) GetQuotation(ctx context.Context, rfqID, quotationID int) (*db.Quotation, error) {
	q, ok := m.quotations[quotationID]
	if !ok || q.RFQID != rfqID {
		return nil, apperror.NotFound("quotation not found")
	}
	cp := *q
	return &cp, nil
}

func (m *MockStorage) ListQuotationsForRFQ(ctx context.Context, rfqID int) ([]db.Quotation, error) {
	var out []db.Quotation
	for _, q := range m.quotations {
		if q.RFQID == rfqID {
			out = append(out, *q)
		}
	}
	return out, nil
}

func (m *MockStorage) SetQuotationPendingFinance(ctx context.Context, quotationID, requestedByID int, justification string) error {
	q, ok := m.quotations[quotationID]
	if !ok {
		return apperror.NotFound("quotation not found")
	}
	q.Status = rules.QuotationPendingFinance
	q.BudgetOverrideJustification = &justification
	now := time.Now()
	q.FinanceRequestedAt = &now
	q.FinanceRequestedByID = &requestedByID
	return nil
}

func (m *MockStorage) RejectQuotation(ctx context.Context, quotationID int) error {
	q, ok := m.quotations[quotationID]
	if !ok {
		return apperror.NotFound("quotation not found")
	}
	q.Status = rules.QuotationRejected
	return nil
}

func (m *MockStorage) AwardQuotation(ctx context.Context, rfqID, quotationID, approverID int, addToTotal decimal.Decimal) (*db.AwardResult, error) {
	rfq, ok := m.rfqs[rfqID]
	if !ok {
		return nil, apperror.NotFound("RFQ not found")
	}
	if rfq.Status == rules.RFQAwarded {
		return nil, apperror.Conflict("RFQ is already awarded")
	}
	if !rules.CanAwardFromRFQStatus(rfq.Status) {
		return nil, apperror.InvalidState("RFQ cannot be awarded from its current status")
	}
	winner, ok := m.quotations[quotationID]
	if !ok || winner.RFQID != rfqID {
		return nil, apperror.NotFound("quotation not found")
	}

	result := &db.AwardResult{}
	now := time.Now()
	winner.Status = rules.QuotationApproved
	winner.ApprovedAt = &now
	winner.ApprovedByID = &approverID
	for _, q := range m.quotations {
		if q.RFQID == rfqID && q.ID != quotationID && q.Status != rules.QuotationRejected {
			q.Status = rules.QuotationRejected
			result.Losers = append(result.Losers, *m.suppliers[q.SupplierID])
		}
	}
	for supplierID, inv := range m.invitations[rfqID] {
		if supplierID == winner.SupplierID {
			inv.Status = rules.InvitationAwarded
		} else {
			inv.Status = rules.InvitationNotSelected
		}
	}
	rfq.Status = rules.RFQAwarded

	profile := m.suppliers[winner.SupplierID]
	profile.TotalAwardedValue = profile.TotalAwardedValue.Add(addToTotal)
	result.Winner = *profile

	for _, r := range m.requests {
		if r.RFQID != nil && *r.RFQID == rfqID && r.Status == rules.RequestRFQIssued {
			r.Status = rules.RequestCompleted
			id := r.ID
			result.RequestID = &id
		}
	}
	return result, nil
}

func (m *MockStorage) MarkQuotationDelivered(ctx context.Context, quotationID, markedByID int, noteRef, noteName *string) error {
	q, ok := m.quotations[quotationID]
	if !ok {
		return apperror.NotFound("quotation not found")
	}
	status := "delivered"
	now := time.Now()
	q.DeliveryStatus = &status
	q.DeliveredAt = &now
	q.DeliveryNoteRef = noteRef
	q.DeliveryNoteName = noteName
	q.MarkedDeliveredByID = &markedByID
	return nil
}

func (m *MockStorage) decorateMessage(msg db.Message) db.Message {
	if u, ok := m.users[msg.SenderID]; ok {
		msg.SenderName = u.FullName
	}
	if u, ok := m.users[msg.RecipientID]; ok {
		msg.RecipientName = u.FullName
	}
	if p, ok := m.suppliers[msg.SupplierID]; ok {
		msg.SupplierName = p.CompanyName
	}
	return msg
}

func (m *MockStorage) CreateMessage(ctx context.Context, msg *db.Message) error {
	msg.ID = m.id()
	msg.CreatedAt = time.Now()
	cp := *msg
	m.messages[msg.ID] = &cp
	return nil
}

func (m *MockStorage) GetMessage(ctx context.Context, id int) (*db.Message, error) {
	msg, ok := m.messages[id]
	if !ok {
		return nil, apperror.NotFound("message not found")
	}
	cp := m.decorateMessage(*msg)
	return &cp, nil
}

func (m *MockStorage) ListReceivedMessages(ctx context.Context, recipientID int) ([]db.Message, error) {
	var out []db.Message
	for _, msg := range m.messages {
		if msg.RecipientID == recipientID {
			out = append(out, m.decorateMessage(*msg))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *MockStorage) ListSentMessages(ctx context.Context, senderID int) ([]db.Message, error) {
	var out []db.Message
	for _, msg := range m.messages {
		if msg.SenderID == senderID {
			out = append(out, m.decorateMessage(*msg))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *MockStorage) ListSupplierConversation(ctx context.Context, supplierID, userID int) ([]db.Message, error) {
	var out []db.Message
	for _, msg := range m.messages {
		if msg.SupplierID == supplierID && (msg.SenderID == userID || msg.RecipientID == userID) {
			out = append(out, m.decorateMessage(*msg))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MockStorage) MarkMessageRead(ctx context.Context, messageID, recipientID int, now time.Time) error {
	msg, ok := m.messages[messageID]
	if !ok || msg.RecipientID != recipientID {
		return apperror.NotFound("message not found")
	}
	msg.Status = rules.MessageRead
	if msg.ReadAt == nil {
		msg.ReadAt = &now
	}
	return nil
}

// recordingNotifier копит отправленные письма
type recordingNotifier struct {
	emails []string // "to: subject"
}

func (n *recordingNotifier) Send(to, subject, body string) {
	n.emails = append(n.emails, to+": "+subject)
}

type fixture struct {
	store    *MockStorage
	notifier *recordingNotifier
	handler  *handlers.Handler

	admin     *db.User
	requester *db.User
	hod       *db.User
	buyer     *db.User

	department *db.Department
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := NewMockStorage()
	notifier := &recordingNotifier{}
	docs, err := docstore.NewStore(t.TempDir())
	require.NoError(t, err)
	tokens := auth.NewTokenManager("test-secret", time.Hour)
	h := handlers.NewHandler(store, notifier, tokens, docs, handlers.Options{
		InvitationBatchSize: 25,
		BaseCurrency:        "USD",
	})

	f := &fixture{store: store, notifier: notifier, handler: h}
	f.admin = f.addUser(t, "admin@corp.test", rules.RoleAdmin)
	f.requester = f.addUser(t, "requester@corp.test", rules.RoleRequester)
	f.hod = f.addUser(t, "hod@corp.test", rules.RoleHeadOfDepartment)
	f.buyer = f.addUser(t, "buyer@corp.test", rules.RoleProcurement)

	f.department = &db.Department{Name: "Operations", HeadOfDepartmentID: &f.hod.ID}
	require.NoError(t, store.CreateDepartment(context.Background(), f.department))
	require.NoError(t, store.CreateCategory(context.Background(), &db.ProcurementCategory{Name: "IT Equipment"}))
	return f
}

func (f *fixture) addUser(t *testing.T, email string, role rules.Role) *db.User {
	t.Helper()
	u := &db.User{Email: email, FullName: strings.Split(email, "@")[0], Role: role, IsActive: true}
	require.NoError(t, f.store.CreateUser(context.Background(), u))
	return u
}

func (f *fixture) addSupplier(t *testing.T, company string) *db.SupplierProfile {
	t.Helper()
	u := f.addUser(t, strings.ToLower(company)+"@sup.test", rules.RoleSupplier)
	p := &db.SupplierProfile{
		UserID: u.ID, CompanyName: company,
		ContactEmail: strings.ToLower(company) + "@sup.test",
	}
	require.NoError(t, f.store.CreateSupplier(context.Background(), p, []string{"IT Equipment"}))
	return p
}

// asUser готовит запрос с личностью пользователя и параметрами пути
func asUser(u *db.User, req *http.Request, params map[string]string) *http.Request {
	req = req.WithContext(auth.WithIdentity(req.Context(), auth.Identity{UserID: u.ID, Role: u.Role}))
	if params != nil {
		req = testutils.WithChiURLParams(req, params)
	}
	return req
}

func jsonBody(t *testing.T, v interface{}) *bytes.Buffer {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewBuffer(b)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(dst))
}

func (f *fixture) createRequest(t *testing.T) *db.PurchaseRequest {
	t.Helper()
	body := jsonBody(t, map[string]interface{}{
		"title":         "Laptops",
		"description":   "20 laptops for the operations team",
		"justification": "Current machines are out of warranty",
		"category":      "IT Equipment",
		"departmentId":  f.department.ID,
		"neededBy":      time.Now().Add(30 * 24 * time.Hour),
	})
	req := asUser(f.requester, httptest.NewRequest(http.MethodPost, "/api/requests/new", body), nil)
	rec := httptest.NewRecorder()
	f.handler.CreateRequestHandler(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created db.PurchaseRequest
	decodeBody(t, rec, &created)
	return &created
}

func (f *fixture) hodApprove(t *testing.T, requestID int) {
	t.Helper()
	req := asUser(f.hod,
		httptest.NewRequest(http.MethodPost, "/api/requests/1/hod-approve", jsonBody(t, map[string]string{})),
		map[string]string{"requestID": fmt.Sprint(requestID)})
	rec := httptest.NewRecorder()
	f.handler.HODApproveHandler(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

// procurementApprove проводит заявку через закупки и возвращает созданный RFQ
func (f *fixture) procurementApprove(t *testing.T, requestID int) *db.RFQ {
	t.Helper()
	body := jsonBody(t, map[string]interface{}{
		"budgetAmount": "15000",
		"currency":     "USD",
		"rfqDeadline":  time.Now().Add(14 * 24 * time.Hour),
	})
	req := asUser(f.buyer,
		httptest.NewRequest(http.MethodPost, "/api/requests/1/procurement-approve", body),
		map[string]string{"requestID": fmt.Sprint(requestID)})
	rec := httptest.NewRecorder()
	f.handler.ProcurementApproveHandler(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		RFQ db.RFQ `json:"rfq"`
	}
	decodeBody(t, rec, &resp)
	return &resp.RFQ
}

func (f *fixture) submitQuotation(t *testing.T, supplier *db.SupplierProfile, rfqID int, amount string) *db.Quotation {
	t.Helper()
	user := f.store.users[supplier.UserID]
	body := jsonBody(t, map[string]interface{}{"amount": amount, "currency": "USD"})
	req := asUser(user,
		httptest.NewRequest(http.MethodPost, "/api/rfqs/1/quotations", body),
		map[string]string{"rfqID": fmt.Sprint(rfqID)})
	rec := httptest.NewRecorder()
	f.handler.SubmitQuotationHandler(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var q db.Quotation
	decodeBody(t, rec, &q)
	return &q
}

func TestCreateRequestNotifiesHOD(t *testing.T) {
	f := newFixture(t)
	created := f.createRequest(t)

	require.Equal(t, rules.RequestPendingHOD, created.Status)
	require.Contains(t, f.notifier.emails[0], f.requester.Email)
	require.Contains(t, f.notifier.emails[1], f.hod.Email)
}

func TestCreateRequestRejectsPastNeededBy(t *testing.T) {
	f := newFixture(t)
	body := jsonBody(t, map[string]interface{}{
		"title":         "Laptops",
		"description":   "x",
		"justification": "x",
		"category":      "IT Equipment",
		"departmentId":  f.department.ID,
		"neededBy":      time.Now().Add(-time.Hour),
	})
	req := asUser(f.requester, httptest.NewRequest(http.MethodPost, "/api/requests/new", body), nil)
	rec := httptest.NewRecorder()
	f.handler.CreateRequestHandler(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHODApproveMovesToProcurement(t *testing.T) {
	f := newFixture(t)
	created := f.createRequest(t)
	f.hodApprove(t, created.ID)

	stored, err := f.store.GetRequest(context.Background(), created.ID)
	require.NoError(t, err)
	require.Equal(t, rules.RequestPendingProcurement, stored.Status)
	require.Equal(t, f.hod.ID, *stored.HODReviewerID)
}

func TestHODRejectRequiresReason(t *testing.T) {
	f := newFixture(t)
	created := f.createRequest(t)

	req := asUser(f.hod,
		httptest.NewRequest(http.MethodPost, "/api/requests/1/hod-reject", jsonBody(t, map[string]string{})),
		map[string]string{"requestID": fmt.Sprint(created.ID)})
	rec := httptest.NewRecorder()
	f.handler.HODRejectHandler(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	req = asUser(f.hod,
		httptest.NewRequest(http.MethodPost, "/api/requests/1/hod-reject", jsonBody(t, map[string]string{"reason": "not budgeted this quarter"})),
		map[string]string{"requestID": fmt.Sprint(created.ID)})
	rec = httptest.NewRecorder()
	f.handler.HODRejectHandler(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	stored, _ := f.store.GetRequest(context.Background(), created.ID)
	require.Equal(t, rules.RequestRejectedByHOD, stored.Status)
}

func TestHODOfAnotherDepartmentForbidden(t *testing.T) {
	f := newFixture(t)
	created := f.createRequest(t)
	stranger := f.addUser(t, "other-hod@corp.test", rules.RoleHeadOfDepartment)

	req := asUser(stranger,
		httptest.NewRequest(http.MethodPost, "/api/requests/1/hod-approve", jsonBody(t, map[string]string{})),
		map[string]string{"requestID": fmt.Sprint(created.ID)})
	rec := httptest.NewRecorder()
	f.handler.HODApproveHandler(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestTerminalRequestCannotBeReviewedAgain(t *testing.T) {
	f := newFixture(t)
	created := f.createRequest(t)

	req := asUser(f.hod,
		httptest.NewRequest(http.MethodPost, "/api/requests/1/hod-reject", jsonBody(t, map[string]string{"reason": "no"})),
		map[string]string{"requestID": fmt.Sprint(created.ID)})
	rec := httptest.NewRecorder()
	f.handler.HODRejectHandler(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	// Повторное решение по отклонённой заявке
	req = asUser(f.hod,
		httptest.NewRequest(http.MethodPost, "/api/requests/1/hod-approve", jsonBody(t, map[string]string{})),
		map[string]string{"requestID": fmt.Sprint(created.ID)})
	rec = httptest.NewRecorder()
	f.handler.HODApproveHandler(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProcurementApproveIssuesRFQAndInvites(t *testing.T) {
	f := newFixture(t)
	sup1 := f.addSupplier(t, "Alpha")
	sup2 := f.addSupplier(t, "Beta")

	created := f.createRequest(t)
	f.hodApprove(t, created.ID)
	rfq := f.procurementApprove(t, created.ID)

	require.Equal(t, rules.RFQOpen, rfq.Status)
	require.Contains(t, rfq.RFQNumber, "RFQ")

	stored, _ := f.store.GetRequest(context.Background(), created.ID)
	require.Equal(t, rules.RequestRFQIssued, stored.Status)
	require.Equal(t, rfq.ID, *stored.RFQID)

	invited, err := f.store.ListInvitedSupplierIDs(context.Background(), rfq.ID)
	require.NoError(t, err)
	require.True(t, invited[sup1.ID])
	require.True(t, invited[sup2.ID])
	require.Equal(t, 1, f.store.suppliers[sup1.ID].InvitationsSent)
}

func TestSubmitQuotationRequiresInvitation(t *testing.T) {
	f := newFixture(t)
	f.addSupplier(t, "Alpha")
	created := f.createRequest(t)
	f.hodApprove(t, created.ID)
	rfq := f.procurementApprove(t, created.ID)

	outsider := f.addSupplier(t, "Gamma") // зарегистрирован после рассылки
	user := f.store.users[outsider.UserID]
	body := jsonBody(t, map[string]interface{}{"amount": "100", "currency": "USD"})
	req := asUser(user,
		httptest.NewRequest(http.MethodPost, "/api/rfqs/1/quotations", body),
		map[string]string{"rfqID": fmt.Sprint(rfq.ID)})
	rec := httptest.NewRecorder()
	f.handler.SubmitQuotationHandler(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestResubmissionReplacesQuotation(t *testing.T) {
	f := newFixture(t)
	sup := f.addSupplier(t, "Alpha")
	created := f.createRequest(t)
	f.hodApprove(t, created.ID)
	rfq := f.procurementApprove(t, created.ID)

	first := f.submitQuotation(t, sup, rfq.ID, "12000")
	second := f.submitQuotation(t, sup, rfq.ID, "11000")

	require.Equal(t, first.ID, second.ID)
	require.Equal(t, rules.QuotationSubmitted, second.Status)
	quotations, _ := f.store.ListQuotationsForRFQ(context.Background(), rfq.ID)
	require.Len(t, quotations, 1)
	require.True(t, decimal.RequireFromString("11000").Equal(quotations[0].Amount))
}

func TestApproveInBudgetAwardsImmediately(t *testing.T) {
	f := newFixture(t)
	winner := f.addSupplier(t, "Alpha")
	loser := f.addSupplier(t, "Beta")
	created := f.createRequest(t)
	f.hodApprove(t, created.ID)
	rfq := f.procurementApprove(t, created.ID) // бюджет 15000

	winning := f.submitQuotation(t, winner, rfq.ID, "12000")
	losing := f.submitQuotation(t, loser, rfq.ID, "14000")

	req := asUser(f.buyer,
		httptest.NewRequest(http.MethodPost, "/api/rfqs/1/quotations/1/approve", jsonBody(t, map[string]string{})),
		map[string]string{"rfqID": fmt.Sprint(rfq.ID), "quotationID": fmt.Sprint(winning.ID)})
	rec := httptest.NewRecorder()
	f.handler.ApproveQuotationHandler(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var approved db.Quotation
	decodeBody(t, rec, &approved)
	require.Equal(t, rules.QuotationApproved, approved.Status)

	// Побочные эффекты награждения
	storedRFQ, _ := f.store.GetRFQ(context.Background(), rfq.ID)
	require.Equal(t, rules.RFQAwarded, storedRFQ.Status)

	other, _ := f.store.GetQuotation(context.Background(), rfq.ID, losing.ID)
	require.Equal(t, rules.QuotationRejected, other.Status)

	winInv, _ := f.store.GetInvitation(context.Background(), rfq.ID, winner.ID)
	require.Equal(t, rules.InvitationAwarded, winInv.Status)
	loseInv, _ := f.store.GetInvitation(context.Background(), rfq.ID, loser.ID)
	require.Equal(t, rules.InvitationNotSelected, loseInv.Status)

	require.True(t, decimal.RequireFromString("12000").Equal(f.store.suppliers[winner.ID].TotalAwardedValue))

	storedReq, _ := f.store.GetRequest(context.Background(), created.ID)
	require.Equal(t, rules.RequestCompleted, storedReq.Status)
}

func TestOverBudgetApprovalGoesToFinance(t *testing.T) {
	f := newFixture(t)
	sup := f.addSupplier(t, "Alpha")
	created := f.createRequest(t)
	f.hodApprove(t, created.ID)
	rfq := f.procurementApprove(t, created.ID) // бюджет 15000

	q := f.submitQuotation(t, sup, rfq.ID, "18000")

	// Без обоснования превышение не проходит
	req := asUser(f.buyer,
		httptest.NewRequest(http.MethodPost, "/api/rfqs/1/quotations/1/approve", jsonBody(t, map[string]string{})),
		map[string]string{"rfqID": fmt.Sprint(rfq.ID), "quotationID": fmt.Sprint(q.ID)})
	rec := httptest.NewRecorder()
	f.handler.ApproveQuotationHandler(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// С обоснованием — на финансовое согласование, RFQ ещё не присуждён
	req = asUser(f.buyer,
		httptest.NewRequest(http.MethodPost, "/api/rfqs/1/quotations/1/approve",
			jsonBody(t, map[string]string{"justification": "only compliant vendor"})),
		map[string]string{"rfqID": fmt.Sprint(rfq.ID), "quotationID": fmt.Sprint(q.ID)})
	rec = httptest.NewRecorder()
	f.handler.ApproveQuotationHandler(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var pending db.Quotation
	decodeBody(t, rec, &pending)
	require.Equal(t, rules.QuotationPendingFinance, pending.Status)
	storedRFQ, _ := f.store.GetRFQ(context.Background(), rfq.ID)
	require.Equal(t, rules.RFQOpen, storedRFQ.Status)

	// Закупки не могут финально одобрить из pending_finance_approval
	req = asUser(f.buyer,
		httptest.NewRequest(http.MethodPost, "/api/rfqs/1/quotations/1/approve", jsonBody(t, map[string]string{})),
		map[string]string{"rfqID": fmt.Sprint(rfq.ID), "quotationID": fmt.Sprint(q.ID)})
	rec = httptest.NewRecorder()
	f.handler.ApproveQuotationHandler(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	// Админ одобряет финально — RFQ присуждается
	req = asUser(f.admin,
		httptest.NewRequest(http.MethodPost, "/api/rfqs/1/quotations/1/approve", jsonBody(t, map[string]string{})),
		map[string]string{"rfqID": fmt.Sprint(rfq.ID), "quotationID": fmt.Sprint(q.ID)})
	rec = httptest.NewRecorder()
	f.handler.ApproveQuotationHandler(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	storedRFQ, _ = f.store.GetRFQ(context.Background(), rfq.ID)
	require.Equal(t, rules.RFQAwarded, storedRFQ.Status)
}

func TestAwardedRFQCannotBeAwardedTwice(t *testing.T) {
	f := newFixture(t)
	sup1 := f.addSupplier(t, "Alpha")
	sup2 := f.addSupplier(t, "Beta")
	created := f.createRequest(t)
	f.hodApprove(t, created.ID)
	rfq := f.procurementApprove(t, created.ID)

	q1 := f.submitQuotation(t, sup1, rfq.ID, "12000")
	q2 := f.submitQuotation(t, sup2, rfq.ID, "13000")

	approve := func(qID int) *httptest.ResponseRecorder {
		req := asUser(f.buyer,
			httptest.NewRequest(http.MethodPost, "/api/rfqs/1/quotations/1/approve", jsonBody(t, map[string]string{})),
			map[string]string{"rfqID": fmt.Sprint(rfq.ID), "quotationID": fmt.Sprint(qID)})
		rec := httptest.NewRecorder()
		f.handler.ApproveQuotationHandler(rec, req)
		return rec
	}

	require.Equal(t, http.StatusOK, approve(q1.ID).Code)
	// Вторая котировка уже отклонена награждением
	require.Equal(t, http.StatusBadRequest, approve(q2.ID).Code)
}

func TestExpiredRFQClosesOnReadAndRejectsQuotations(t *testing.T) {
	f := newFixture(t)
	sup := f.addSupplier(t, "Alpha")
	created := f.createRequest(t)
	f.hodApprove(t, created.ID)
	rfq := f.procurementApprove(t, created.ID)

	// Дедлайн в прошлом
	f.store.rfqs[rfq.ID].Deadline = time.Now().Add(-time.Hour)

	user := f.store.users[sup.UserID]
	body := jsonBody(t, map[string]interface{}{"amount": "100", "currency": "USD"})
	req := asUser(user,
		httptest.NewRequest(http.MethodPost, "/api/rfqs/1/quotations", body),
		map[string]string{"rfqID": fmt.Sprint(rfq.ID)})
	rec := httptest.NewRecorder()
	f.handler.SubmitQuotationHandler(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	stored, _ := f.store.GetRFQ(context.Background(), rfq.ID)
	require.Equal(t, rules.RFQClosed, stored.Status)
}

func TestDraftRFQHiddenFromRequester(t *testing.T) {
	f := newFixture(t)
	officer := f.addUser(t, "officer@corp.test", rules.RoleProcurementOfficer)

	body := jsonBody(t, map[string]interface{}{
		"title":       "Printers",
		"description": "Office printers",
		"category":    "IT Equipment",
		"currency":    "USD",
		"deadline":    time.Now().Add(7 * 24 * time.Hour),
	})
	req := asUser(officer, httptest.NewRequest(http.MethodPost, "/api/rfqs/new", body), nil)
	rec := httptest.NewRecorder()
	f.handler.CreateRFQHandler(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var rfq db.RFQ
	decodeBody(t, rec, &rfq)
	require.Equal(t, rules.RFQDraft, rfq.Status)

	// Заявитель черновик не видит
	getReq := asUser(f.requester,
		httptest.NewRequest(http.MethodGet, "/api/rfqs/1", nil),
		map[string]string{"rfqID": fmt.Sprint(rfq.ID)})
	getRec := httptest.NewRecorder()
	f.handler.GetRFQHandler(getRec, getReq)
	require.Equal(t, http.StatusNotFound, getRec.Code)

	// Автор видит
	getReq = asUser(officer,
		httptest.NewRequest(http.MethodGet, "/api/rfqs/1", nil),
		map[string]string{"rfqID": fmt.Sprint(rfq.ID)})
	getRec = httptest.NewRecorder()
	f.handler.GetRFQHandler(getRec, getReq)
	require.Equal(t, http.StatusOK, getRec.Code)
}

func TestApproveDraftOpensAndInvites(t *testing.T) {
	f := newFixture(t)
	sup := f.addSupplier(t, "Alpha")
	officer := f.addUser(t, "officer@corp.test", rules.RoleProcurementOfficer)

	body := jsonBody(t, map[string]interface{}{
		"title":       "Printers",
		"description": "Office printers",
		"category":    "IT Equipment",
		"currency":    "USD",
		"deadline":    time.Now().Add(7 * 24 * time.Hour),
	})
	req := asUser(officer, httptest.NewRequest(http.MethodPost, "/api/rfqs/new", body), nil)
	rec := httptest.NewRecorder()
	f.handler.CreateRFQHandler(rec, req)
	var rfq db.RFQ
	decodeBody(t, rec, &rfq)

	// Офицер сам утвердить не может
	approveReq := asUser(officer,
		httptest.NewRequest(http.MethodPost, "/api/rfqs/1/approve", nil),
		map[string]string{"rfqID": fmt.Sprint(rfq.ID)})
	approveRec := httptest.NewRecorder()
	f.handler.ApproveDraftRFQHandler(approveRec, approveReq)
	require.Equal(t, http.StatusForbidden, approveRec.Code)

	approveReq = asUser(f.buyer,
		httptest.NewRequest(http.MethodPost, "/api/rfqs/1/approve", nil),
		map[string]string{"rfqID": fmt.Sprint(rfq.ID)})
	approveRec = httptest.NewRecorder()
	f.handler.ApproveDraftRFQHandler(approveRec, approveReq)
	require.Equal(t, http.StatusOK, approveRec.Code)

	invited, _ := f.store.ListInvitedSupplierIDs(context.Background(), rfq.ID)
	require.True(t, invited[sup.ID])
}

func TestManualInviteSkipsAlreadyInvited(t *testing.T) {
	f := newFixture(t)
	sup := f.addSupplier(t, "Alpha")
	created := f.createRequest(t)
	f.hodApprove(t, created.ID)
	rfq := f.procurementApprove(t, created.ID)

	req := asUser(f.buyer,
		httptest.NewRequest(http.MethodPost, "/api/rfqs/1/invite",
			jsonBody(t, map[string][]int{"supplierIds": {sup.ID}})),
		map[string]string{"rfqID": fmt.Sprint(rfq.ID)})
	rec := httptest.NewRecorder()
	f.handler.InviteSuppliersHandler(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]int
	decodeBody(t, rec, &resp)
	require.Equal(t, 0, resp["invited"])
	require.Equal(t, 1, f.store.suppliers[sup.ID].InvitationsSent)
}

func TestMarkDelivered(t *testing.T) {
	f := newFixture(t)
	sup := f.addSupplier(t, "Alpha")
	created := f.createRequest(t)
	f.hodApprove(t, created.ID)
	rfq := f.procurementApprove(t, created.ID)
	q := f.submitQuotation(t, sup, rfq.ID, "12000")

	deliver := func(u *db.User) *httptest.ResponseRecorder {
		req := asUser(u,
			httptest.NewRequest(http.MethodPost, "/api/rfqs/1/quotations/1/deliver", nil),
			map[string]string{"rfqID": fmt.Sprint(rfq.ID), "quotationID": fmt.Sprint(q.ID)})
		rec := httptest.NewRecorder()
		f.handler.MarkDeliveredHandler(rec, req)
		return rec
	}

	// До награждения отметка недоступна
	require.Equal(t, http.StatusBadRequest, deliver(f.buyer).Code)

	approveReq := asUser(f.buyer,
		httptest.NewRequest(http.MethodPost, "/api/rfqs/1/quotations/1/approve", jsonBody(t, map[string]string{})),
		map[string]string{"rfqID": fmt.Sprint(rfq.ID), "quotationID": fmt.Sprint(q.ID)})
	approveRec := httptest.NewRecorder()
	f.handler.ApproveQuotationHandler(approveRec, approveReq)
	require.Equal(t, http.StatusOK, approveRec.Code)

	require.Equal(t, http.StatusOK, deliver(f.buyer).Code)
	// Повторная отметка
	require.Equal(t, http.StatusBadRequest, deliver(f.buyer).Code)
}

func TestCreateUserAdminOnly(t *testing.T) {
	f := newFixture(t)
	body := func() *bytes.Buffer {
		return jsonBody(t, map[string]string{
			"email": "new@corp.test", "password": "secret-pass", "fullName": "New User", "role": "Requester",
		})
	}

	req := asUser(f.buyer, httptest.NewRequest(http.MethodPost, "/api/users/new", body()), nil)
	rec := httptest.NewRecorder()
	f.handler.CreateUserHandler(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req = asUser(f.admin, httptest.NewRequest(http.MethodPost, "/api/users/new", body()), nil)
	rec = httptest.NewRecorder()
	f.handler.CreateUserHandler(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	hash, err := auth.HashPassword("correct horse")
	require.NoError(t, err)
	f.store.users[f.buyer.ID].HashedPassword = hash

	login := func(password string) *httptest.ResponseRecorder {
		body := jsonBody(t, map[string]string{"email": f.buyer.Email, "password": password})
		rec := httptest.NewRecorder()
		f.handler.LoginHandler(rec, httptest.NewRequest(http.MethodPost, "/api/login", body))
		return rec
	}

	require.Equal(t, http.StatusForbidden, login("wrong").Code)

	rec := login("correct horse")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp map[string]interface{}
	decodeBody(t, rec, &resp)
	require.NotEmpty(t, resp["token"])
}

// Гонка двух одновременных награждений: проигравший читает RFQ до
// коммита победителя и получает conflict от хранилища
func TestConcurrentAwardLoserGetsConflict(t *testing.T) {
	f := newFixture(t)
	sup1 := f.addSupplier(t, "Alpha")
	sup2 := f.addSupplier(t, "Beta")
	created := f.createRequest(t)
	f.hodApprove(t, created.ID)
	rfq := f.procurementApprove(t, created.ID)

	q1 := f.submitQuotation(t, sup1, rfq.ID, "12000")
	q2 := f.submitQuotation(t, sup2, rfq.ID, "13000")

	approve := func(qID int) *httptest.ResponseRecorder {
		req := asUser(f.buyer,
			httptest.NewRequest(http.MethodPost, "/api/rfqs/1/quotations/1/approve", jsonBody(t, map[string]string{})),
			map[string]string{"rfqID": fmt.Sprint(rfq.ID), "quotationID": fmt.Sprint(qID)})
		rec := httptest.NewRecorder()
		f.handler.ApproveQuotationHandler(rec, req)
		return rec
	}

	require.Equal(t, http.StatusOK, approve(q1.ID).Code)

	// Вторая транзакция успела прочитать котировку ещё в submitted
	f.store.quotations[q2.ID].Status = rules.QuotationSubmitted

	rec := approve(q2.ID)
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	var resp map[string]string
	decodeBody(t, rec, &resp)
	require.Equal(t, "conflict", resp["kind"])
}

func TestInviteWithoutBodyRunsRotationRound(t *testing.T) {
	f := newFixture(t)
	f.addSupplier(t, "Alpha")
	created := f.createRequest(t)
	f.hodApprove(t, created.ID)
	rfq := f.procurementApprove(t, created.ID)

	// Новый поставщик появился после выпуска RFQ
	late := f.addSupplier(t, "Beta")

	req := asUser(f.buyer,
		httptest.NewRequest(http.MethodPost, "/api/rfqs/1/invite", nil),
		map[string]string{"rfqID": fmt.Sprint(rfq.ID)})
	rec := httptest.NewRecorder()
	f.handler.InviteSuppliersHandler(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]int
	decodeBody(t, rec, &resp)
	require.Equal(t, 1, resp["invited"])
	require.Equal(t, 1, f.store.suppliers[late.ID].InvitationsSent)
}

func (f *fixture) sendMessage(t *testing.T, sender *db.User, recipientID, supplierID int, subject string) *httptest.ResponseRecorder {
	t.Helper()
	body := jsonBody(t, map[string]interface{}{
		"recipientId": recipientID,
		"supplierId":  supplierID,
		"subject":     subject,
		"content":     "Please confirm the delivery schedule.",
	})
	req := asUser(sender, httptest.NewRequest(http.MethodPost, "/api/messages", body), nil)
	rec := httptest.NewRecorder()
	f.handler.SendMessageHandler(rec, req)
	return rec
}

func TestSendMessageNotifiesRecipient(t *testing.T) {
	f := newFixture(t)
	sup := f.addSupplier(t, "Alpha")
	supUser := f.store.users[sup.UserID]

	rec := f.sendMessage(t, f.buyer, supUser.ID, sup.ID, "Delivery schedule")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var sent db.Message
	decodeBody(t, rec, &sent)
	require.Equal(t, "Alpha", sent.SupplierName)
	require.Equal(t, rules.MessageSent, sent.Status)
	require.Contains(t, f.notifier.emails[len(f.notifier.emails)-1], supUser.Email)

	// Ответ поставщика тем же эндпоинтом
	rec = f.sendMessage(t, supUser, f.buyer.ID, sup.ID, "Re: Delivery schedule")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	req := asUser(f.buyer,
		httptest.NewRequest(http.MethodGet, "/api/messages/conversation/1", nil),
		map[string]string{"supplierID": fmt.Sprint(sup.ID)})
	convRec := httptest.NewRecorder()
	f.handler.SupplierConversationHandler(convRec, req)
	require.Equal(t, http.StatusOK, convRec.Code)

	var conv struct {
		Messages    []db.Message `json:"messages"`
		TotalCount  int          `json:"totalCount"`
		UnreadCount int          `json:"unreadCount"`
	}
	decodeBody(t, convRec, &conv)
	require.Equal(t, 2, conv.TotalCount)
	require.Equal(t, 1, conv.UnreadCount) // непрочитанный ответ поставщика
}

func TestSendMessageForbiddenForOutsiders(t *testing.T) {
	f := newFixture(t)
	alpha := f.addSupplier(t, "Alpha")
	beta := f.addSupplier(t, "Beta")
	betaUser := f.store.users[beta.UserID]

	// Поставщик не может писать от имени чужого профиля
	rec := f.sendMessage(t, betaUser, f.buyer.ID, alpha.ID, "Hello")
	require.Equal(t, http.StatusForbidden, rec.Code)

	// Заявитель вне переписки с поставщиками
	rec = f.sendMessage(t, f.requester, f.buyer.ID, alpha.ID, "Hello")
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMarkMessageReadOnlyRecipient(t *testing.T) {
	f := newFixture(t)
	sup := f.addSupplier(t, "Alpha")
	supUser := f.store.users[sup.UserID]

	rec := f.sendMessage(t, f.buyer, supUser.ID, sup.ID, "Delivery schedule")
	require.Equal(t, http.StatusCreated, rec.Code)
	var sent db.Message
	decodeBody(t, rec, &sent)

	markRead := func(u *db.User) *httptest.ResponseRecorder {
		req := asUser(u,
			httptest.NewRequest(http.MethodPut, "/api/messages/1/read", nil),
			map[string]string{"messageID": fmt.Sprint(sent.ID)})
		rec := httptest.NewRecorder()
		f.handler.MarkMessageReadHandler(rec, req)
		return rec
	}

	// Отправитель не получатель
	require.Equal(t, http.StatusNotFound, markRead(f.buyer).Code)

	readRec := markRead(supUser)
	require.Equal(t, http.StatusOK, readRec.Code, readRec.Body.String())
	var read db.Message
	decodeBody(t, readRec, &read)
	require.Equal(t, rules.MessageRead, read.Status)
	require.NotNil(t, read.ReadAt)

	listReq := asUser(supUser, httptest.NewRequest(http.MethodGet, "/api/messages/received", nil), nil)
	listRec := httptest.NewRecorder()
	f.handler.ListReceivedMessagesHandler(listRec, listReq)
	var list struct {
		UnreadCount int `json:"unreadCount"`
		TotalCount  int `json:"totalCount"`
	}
	decodeBody(t, listRec, &list)
	require.Equal(t, 1, list.TotalCount)
	require.Equal(t, 0, list.UnreadCount)
}

func TestSetupInitializeBootstrapsFirstAdmin(t *testing.T) {
	store := NewMockStorage()
	docs, err := docstore.NewStore(t.TempDir())
	require.NoError(t, err)
	tokens := auth.NewTokenManager("test-secret", time.Hour)
	h := handlers.NewHandler(store, &recordingNotifier{}, tokens, docs, handlers.Options{
		SetupToken: "deploy-secret",
	})

	status := func() map[string]interface{} {
		rec := httptest.NewRecorder()
		h.SetupStatusHandler(rec, httptest.NewRequest(http.MethodGet, "/api/setup/status", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		var resp map[string]interface{}
		decodeBody(t, rec, &resp)
		return resp
	}
	initialize := func(token string) *httptest.ResponseRecorder {
		body := jsonBody(t, map[string]string{
			"adminEmail":    "admin@corp.test",
			"adminPassword": "first-secret",
			"secretToken":   token,
		})
		rec := httptest.NewRecorder()
		h.InitializeHandler(rec, httptest.NewRequest(http.MethodPost, "/api/setup/initialize", body))
		return rec
	}

	require.Equal(t, false, status()["initialized"])
	require.Equal(t, http.StatusForbidden, initialize("wrong-token").Code)

	rec := initialize("deploy-secret")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var admin db.User
	decodeBody(t, rec, &admin)
	require.Equal(t, rules.RoleAdmin, admin.Role)
	require.Equal(t, true, status()["initialized"])

	// Повторная инициализация отключена
	require.Equal(t, http.StatusBadRequest, initialize("deploy-secret").Code)
}
