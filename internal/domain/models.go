package domain

import "time"

type Branch struct {
	ID            int64  `json:"id"`
	BranchName    string `json:"branch_name"`
	BranchAddress string `json:"branch_address,omitempty"`
}

type BranchRequest struct {
	BranchName    string `json:"branch_name"`
	BranchAddress string `json:"branch_address"`
}

type Customer struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	CustomerAddress string `json:"customer_address"`
	Phone           string `json:"phone"`
}

type CustomerRequest struct {
	Name            string `json:"name"`
	CustomerAddress string `json:"customer_address"`
	Phone           string `json:"phone"`
}

type Product struct {
	ID          int64  `json:"id"`
	ProductName string `json:"product_name"`
}

type ProductRequest struct {
	ProductName string `json:"product_name"`
}

type ProductType struct {
	ID              int64    `json:"id"`
	ProductID       int64    `json:"id_product"`
	ProductNameType string   `json:"product_name_type"`
	Product         *Product `json:"product,omitempty"`
}

type ProductTypeRequest struct {
	ProductID       int64  `json:"id_product,omitempty"`
	ProductNameType string `json:"product_name_type,omitempty"`
}

// Unit is the sellable stock-keeping entity. Stock is a snapshot taken at the
// last fetch and is never re-read at submission time.
type Unit struct {
	ID              int64  `json:"id"`
	ProductTypeID   int64  `json:"id_product_type"`
	BranchID        int64  `json:"id_branch"`
	UnitName        string `json:"unit_name"`
	Price           int64  `json:"price"`
	CostPrice       int64  `json:"cost_price"`
	Stock           int    `json:"stock"`
	MinStock        int    `json:"min_stock"`
	Branch          string `json:"branch,omitempty"`
	ProductNameType string `json:"product_name_type,omitempty"`
	ProductName     string `json:"product_name,omitempty"`
}

type UnitRequest struct {
	ProductTypeID int64  `json:"id_product_type"`
	BranchID      int64  `json:"id_branch"`
	UnitName      string `json:"unit_name"`
	Price         int64  `json:"price"`
	CostPrice     int64  `json:"cost_price"`
	Stock         int    `json:"stock"`
	MinStock      int    `json:"min_stock"`
}

type SalesOrder struct {
	ID          int64  `json:"id"`
	UserID      int64  `json:"id_user"`
	Date        string `json:"date"`
	Username    string `json:"username"`
	BranchName  string `json:"branch_name"`
	TotalAmount int64  `json:"total_amount"`
	TotalItems  int    `json:"total_items"`
	Status      string `json:"status,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
}

// SalesOrderDetail mirrors the remote row. The remote API swaps the naming:
// ProductNameType carries the product name and ProductName its type.
type SalesOrderDetail struct {
	ID              int64  `json:"id"`
	SalesOrderID    int64  `json:"id_sales_order"`
	Price           int64  `json:"price"`
	Qty             int    `json:"qty"`
	TotalPrice      int64  `json:"total_price"`
	Username        string `json:"username"`
	Branch          string `json:"branch"`
	ProductNameType string `json:"product_name_type"`
	ProductName     string `json:"product_name"`
}

type PurchaseOrder struct {
	ID          int64  `json:"id"`
	UserID      int64  `json:"id_user"`
	Date        string `json:"date"`
	Username    string `json:"username"`
	Vendor      string `json:"vendor"`
	BranchName  string `json:"branch_name"`
	TotalAmount int64  `json:"total_amount"`
	TotalItems  int    `json:"total_items"`
	CreatedAt   string `json:"created_at,omitempty"`
}

type PurchaseOrderDetail struct {
	ID              int64  `json:"id"`
	Price           int64  `json:"price"`
	Qty             int    `json:"qty"`
	Vendor          string `json:"vendor"`
	TotalPrice      int64  `json:"total_price"`
	Username        string `json:"username"`
	Branch          string `json:"branch"`
	ProductNameType string `json:"product_name_type"`
	ProductName     string `json:"product_name"`
}

type Delivery struct {
	ID           int64       `json:"id"`
	SalesOrderID int64       `json:"id_sales_order"`
	CustomerID   int64       `json:"id_customer"`
	Date         string      `json:"date"`
	Status       string      `json:"status"`
	CreatedAt    string      `json:"created_at,omitempty"`
	SalesOrder   *SalesOrder `json:"sales_order,omitempty"`
	Customer     *Customer   `json:"customer,omitempty"`
}

type DeliveryRequest struct {
	SalesOrderID int64 `json:"id_sales_order"`
	CustomerID   int64 `json:"id_customer"`
}

type FlowType struct {
	ID       int64  `json:"id"`
	NameFlow string `json:"name_flow"`
}

type MoneyFlow struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"id_user"`
	FlowTypeID  int64     `json:"id_flow_type"`
	QtyMoney    int64     `json:"qty_money"`
	Description string    `json:"description"`
	Date        string    `json:"date"`
	CreatedAt   string    `json:"created_at,omitempty"`
	FlowType    *FlowType `json:"flow_type,omitempty"`
}

type MoneyFlowRequest struct {
	FlowTypeID  string `json:"id_flow_type,omitempty"`
	QtyMoney    int64  `json:"qty_money,omitempty"`
	Description string `json:"description,omitempty"`
}

type TransferUnit struct {
	ID            int64  `json:"id"`
	UnitName      string `json:"unit_name"`
	ProductTypeID int64  `json:"id_product_type"`
	ProductType   *struct {
		ID              int64  `json:"id"`
		ProductNameType string `json:"product_name_type"`
	} `json:"product_type,omitempty"`
}

type TransferUser struct {
	ID       int64   `json:"id"`
	Username string  `json:"username"`
	Branch   *Branch `json:"branchs,omitempty"`
}

type TransferStock struct {
	ID                int64         `json:"id"`
	UserID            int64         `json:"id_user"`
	ApproverUserID    int64         `json:"id_user_2"`
	UnitRequestID     int64         `json:"id_unit_request"`
	UnitGivesID       int64         `json:"id_unit_gives"`
	QtyProductRequest int           `json:"qty_product_request"`
	Status            string        `json:"status"`
	CreatedAt         string        `json:"created_at"`
	User              *TransferUser `json:"user,omitempty"`
	User2             *TransferUser `json:"user2,omitempty"`
	UnitRequest       *TransferUnit `json:"unit_request,omitempty"`
	UnitGives         *TransferUnit `json:"unit_gives,omitempty"`
}

type TransferStockRequest struct {
	BranchID          int64 `json:"id_branch"`
	UnitRequestID     int64 `json:"id_unit_request"`
	QtyProductRequest int   `json:"qty_product_request"`
}

type TransferStockLists struct {
	MyRequests       []TransferStock `json:"my_requests"`
	IncomingRequests []TransferStock `json:"incoming_requests"`
}

type SafetyStockPrediction struct {
	PredictedSales *struct {
		Total4Weeks    float64   `json:"total_4_weeks"`
		WeeklyForecast []float64 `json:"weekly_forecast"`
	} `json:"predicted_sales,omitempty"`
	Recommendation *struct {
		StockToAdd     int    `json:"stock_to_add"`
		SuggestedOrder int    `json:"suggested_order"`
		Priority       string `json:"priority,omitempty"`
	} `json:"recommendation,omitempty"`
	Note             string `json:"note,omitempty"`
	ForecastAccuracy *struct {
		ModelAIC float64 `json:"model_aic"`
	} `json:"forecast_accuracy,omitempty"`
}

type SafetyStockItem struct {
	ID              int64                  `json:"id"`
	ProductNameType string                 `json:"product_name_type"`
	CurrentStock    int                    `json:"current_stock"`
	MinStock        int                    `json:"min_stock"`
	Price           int64                  `json:"price"`
	Branch          string                 `json:"branch"`
	LastUpdated     string                 `json:"last_updated"`
	Prediction      *SafetyStockPrediction `json:"prediction,omitempty"`
}

type Role struct {
	ID       int64  `json:"id"`
	RoleName string `json:"role_name"`
}

type Account struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	Email     string  `json:"email"`
	Username  string  `json:"username"`
	RoleID    int64   `json:"id_role"`
	BranchID  int64   `json:"id_branch,omitempty"`
	RoleName  string  `json:"role_name,omitempty"`
	Branch    *Branch `json:"branch,omitempty"`
	Role      *Role   `json:"role,omitempty"`
	CreatedAt string  `json:"created_at,omitempty"`
}

type AccountRegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
	RoleID   int64  `json:"id_role"`
	BranchID int64  `json:"id_branch"`
}

type RegisterResponse struct {
	Message string   `json:"message"`
	User    *Account `json:"user,omitempty"`
}

// LineItem is one (unit, quantity, price) tuple within a cart.
type LineItem struct {
	UnitID         int64  `json:"unit_id"`
	DisplayName    string `json:"display_name"`
	ProductName    string `json:"product_name,omitempty"`
	ProductType    string `json:"product_type,omitempty"`
	UnitPrice      int64  `json:"unit_price"`
	AvailableStock int    `json:"available_stock"`
	Qty            int    `json:"qty"`
}

func (l LineItem) Subtotal() int64 {
	return int64(l.Qty) * l.UnitPrice
}

// Submission is the journaled form of a pending transaction. Cursor counts the
// lines the remote system acknowledged.
type Submission struct {
	ID         string     `json:"id"`
	TerminalID string     `json:"terminal_id"`
	Kind       string     `json:"kind"`
	Vendor     string     `json:"vendor,omitempty"`
	ParentID   int64      `json:"parent_id,omitempty"`
	Lines      []LineItem `json:"lines"`
	Cursor     int        `json:"cursor"`
	Status     string     `json:"status"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

const (
	CartKindSales    = "sales"
	CartKindPurchase = "purchase"
)

const (
	SubmissionKindSale           = "sale"
	SubmissionKindPurchase       = "purchase"
	SubmissionKindPurchaseDirect = "purchase_direct"
)

const (
	SubmissionStatusPending   = "pending"
	SubmissionStatusCompleted = "completed"
	SubmissionStatusFailed    = "failed"
)

const (
	StockStatusOutOfStock = "OUT_OF_STOCK"
	StockStatusLow        = "LOW"
	StockStatusNormal     = "NORMAL"
)

const (
	DeliveryStatusPending   = "pending"
	DeliveryStatusCompleted = "completed"
)

const (
	TransferStatusPending  = "pending"
	TransferStatusSuccess  = "success"
	TransferStatusRejected = "rejected"
)

const (
	FlowIncome  = "masuk"
	FlowExpense = "keluar"
)

const (
	RoleBranchOwner int64 = 2
	RoleCashier     int64 = 3
)
