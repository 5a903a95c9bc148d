package enrollments

import (
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/educatory/backend/internal/domain"
	"github.com/educatory/backend/internal/models"
	"github.com/educatory/backend/pkg/response"
	"github.com/educatory/backend/pkg/storage"
)

// CreateEnrollmentRequest is the body for POST /enrollments.
type CreateEnrollmentRequest struct {
	FirstName    string          `json:"first_name" binding:"required"`
	LastName     string          `json:"last_name"`
	Email        string          `json:"email" binding:"required,email"`
	Phone        string          `json:"phone" binding:"required"`
	NationalID   string          `json:"national_id"`
	Address      string          `json:"address"`
	City         string          `json:"city"`
	District     string          `json:"district"`
	State        string          `json:"state"`
	PinCode      string          `json:"pin_code"`
	CourseID     string          `json:"course_id" binding:"required"`
	CourseName   string          `json:"course_name" binding:"required"`
	CourseFee    decimal.Decimal `json:"course_fee"`
	ReferralCode string          `json:"referral_code"`
}

// CompleteEnrollmentForm is the multipart form for PUT /enrollments/:id.
// Files go in the "photo" and "id_document" fields.
type CompleteEnrollmentForm struct {
	SchoolName       string `form:"school_name"`
	SchoolCity       string `form:"school_city"`
	SchoolDistrict   string `form:"school_district"`
	SchoolState      string `form:"school_state"`
	SchoolPinCode    string `form:"school_pin_code"`
	FatherName       string `form:"father_name"`
	FatherOccupation string `form:"father_occupation"`
	FatherPhone      string `form:"father_phone"`
	FatherEmail      string `form:"father_email"`
	MotherName       string `form:"mother_name"`
	MotherOccupation string `form:"mother_occupation"`
	MotherPhone      string `form:"mother_phone"`
	MotherEmail      string `form:"mother_email"`
	ReferenceSource  string `form:"reference_source"`
}

// FetchRequest is the body for POST /enrollments/fetch.
type FetchRequest struct {
	EnrollmentIDOrEmail string `json:"enrollment_id_or_email" binding:"required"`
	CourseID            string `json:"course_id"`
}

// Handler handles enrollment endpoints.
type Handler struct {
	svc      *Service
	uploader storage.Uploader
	logger   *zap.Logger
}

// NewHandler creates an enrollments handler. uploader may be nil when file
// storage is not configured; uploads are then rejected.
func NewHandler(svc *Service, uploader storage.Uploader, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, uploader: uploader, logger: logger}
}

// Create handles POST /enrollments.
func (h *Handler) Create(c *gin.Context) {
	var req CreateEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	res, err := h.svc.Create(c.Request.Context(), CreateRequest(req))
	if err != nil {
		h.fail(c, err, "failed to save enrollment")
		return
	}
	if res.Outcome == OutcomeCreated {
		response.Created(c, res)
		return
	}
	response.OK(c, res)
}

// Complete handles PUT /enrollments/:id.
func (h *Handler) Complete(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	var form CompleteEnrollmentForm
	if err := c.ShouldBind(&form); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	e, err := h.svc.Get(ctx, id)
	if err != nil {
		h.fail(c, err, "failed to load enrollment")
		return
	}
	if e.Status != models.EnrollmentStatusPaymentCompleted {
		h.fail(c, domain.Conflict("enrollment is not awaiting completion"), "enrollment is not awaiting completion")
		return
	}

	details := form.details()
	if details.PhotoURL, err = h.upload(c, id, "photo", storage.KindPhoto); err != nil {
		h.uploadFailed(c, err)
		return
	}
	if details.IDDocumentURL, err = h.upload(c, id, "id_document", storage.KindIDDocument); err != nil {
		h.uploadFailed(c, err)
		return
	}

	res, err := h.svc.Complete(ctx, id, details)
	if err != nil {
		h.fail(c, err, "failed to complete enrollment")
		return
	}
	response.OK(c, res)
}

// Get handles GET /enrollments/:id.
func (h *Handler) Get(c *gin.Context) {
	e, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, "failed to fetch enrollment")
		return
	}
	response.OK(c, e)
}

// Fetch handles POST /enrollments/fetch.
func (h *Handler) Fetch(c *gin.Context) {
	var req FetchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	e, err := h.svc.Fetch(c.Request.Context(), req.EnrollmentIDOrEmail, req.CourseID)
	if err != nil {
		h.fail(c, err, "failed to fetch enrollment")
		return
	}
	response.OK(c, e)
}

var errStorageDisabled = errors.New("file storage not configured")

// upload stores the optional file in field and returns its URL, or "" when
// the field is absent.
func (h *Handler) upload(c *gin.Context, enrollmentID, field string, kind storage.Kind) (string, error) {
	file, err := c.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if h.uploader == nil {
		return "", errStorageDisabled
	}
	contentType, err := storage.Validate(kind, file.Header.Get("Content-Type"), file.Filename, file.Size)
	if err != nil {
		return "", err
	}
	return h.put(c, enrollmentID, kind, contentType, file)
}

func (h *Handler) put(c *gin.Context, enrollmentID string, kind storage.Kind, contentType string, file *multipart.FileHeader) (string, error) {
	rc, err := file.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()
	key := storage.DocumentKey(enrollmentID, kind, contentType)
	url, err := h.uploader.Put(c.Request.Context(), key, contentType, rc, file.Size)
	if err != nil {
		h.logger.Error("upload failed", zap.Error(err), zap.String("enrollment_id", enrollmentID), zap.String("key", key))
		return "", err
	}
	return url, nil
}

func (h *Handler) uploadFailed(c *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrFileTooLarge), errors.Is(err, storage.ErrUnsupportedType):
		response.BadRequest(c, err.Error())
	default:
		h.logger.Error("document upload", zap.Error(err), zap.String("path", c.FullPath()))
		response.Internal(c, "failed to upload documents")
	}
}

func (f CompleteEnrollmentForm) details() models.EnrollmentDetails {
	return models.EnrollmentDetails{
		SchoolName:       f.SchoolName,
		SchoolCity:       f.SchoolCity,
		SchoolDistrict:   f.SchoolDistrict,
		SchoolState:      f.SchoolState,
		SchoolPinCode:    f.SchoolPinCode,
		FatherName:       f.FatherName,
		FatherOccupation: f.FatherOccupation,
		FatherPhone:      f.FatherPhone,
		FatherEmail:      f.FatherEmail,
		MotherName:       f.MotherName,
		MotherOccupation: f.MotherOccupation,
		MotherPhone:      f.MotherPhone,
		MotherEmail:      f.MotherEmail,
		ReferenceSource:  f.ReferenceSource,
	}
}

func (h *Handler) fail(c *gin.Context, err error, msg string) {
	h.logger.Warn(msg, zap.Error(err), zap.String("path", c.FullPath()))
	response.FromError(c, err, msg)
}
