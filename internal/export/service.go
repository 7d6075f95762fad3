package export

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"grievanceos/api/internal/rbac"
	"grievanceos/api/internal/store"
)

// DataStore defines the interface for data access
type DataStore interface {
	GetComplaint(ctx context.Context, scope store.ComplaintScope, id int64) (store.Complaint, error)
	ListResponses(ctx context.Context, complaintID int64) ([]store.Response, error)
	GetDepartment(ctx context.Context, orgID, id int64) (store.Department, error)
	GetOrganizationByID(ctx context.Context, id int64) (store.Organization, error)
}

type converter func(ctx context.Context, html, filename string) (*Result, error)

// Service provides complaint dossier export
type Service struct {
	store  DataStore
	pdf    converter
	docx   converter
	logger *slog.Logger
}

// NewService creates a new export service
func NewService(store DataStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		pdf:    exportPDF,
		docx:   exportDOCX,
		logger: logger.With(slog.String("component", "export")),
	}
}

// Export renders the complaint and its responses in the requested format.
// The complaint is loaded through req.Scope, so out-of-scope ids surface as
// sql.ErrNoRows.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	convert, err := s.converterFor(req.Format)
	if err != nil {
		return nil, err
	}

	data, err := s.buildData(ctx, req)
	if err != nil {
		return nil, err
	}

	html, err := RenderDossierHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	filename := fmt.Sprintf("complaint-%d-%s", data.ComplaintID, sanitizeFilename(data.Title))
	result, err := convert(ctx, html, filename)
	if err != nil {
		s.logger.Error("export failed",
			slog.Int64("complaint_id", req.ComplaintID),
			slog.String("format", string(req.Format)),
			slog.String("error", err.Error()))
		return nil, err
	}
	return result, nil
}

func (s *Service) converterFor(format Format) (converter, error) {
	switch format {
	case FormatPDF:
		return s.pdf, nil
	case FormatDOCX:
		return s.docx, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

func (s *Service) buildData(ctx context.Context, req Request) (TemplateData, error) {
	complaint, err := s.store.GetComplaint(ctx, req.Scope, req.ComplaintID)
	if err != nil {
		return TemplateData{}, fmt.Errorf("get complaint: %w", err)
	}

	org, err := s.store.GetOrganizationByID(ctx, complaint.OrganizationID)
	if err != nil {
		return TemplateData{}, fmt.Errorf("get organization: %w", err)
	}

	data := TemplateData{
		OrganizationName: org.Name,
		ComplaintID:      complaint.ID,
		Title:            complaint.Title,
		DescriptionHTML:  TextToHTML(complaint.Description),
		Status:           complaint.Status,
		Priority:         complaint.Priority,
		CreatedAt:        complaint.CreatedAt,
		UpdatedAt:        complaint.UpdatedAt,
		Responses:        []TemplateResponse{},
	}
	if complaint.FileURL != nil {
		data.FileURL = *complaint.FileURL
	}
	if complaint.DepartmentID != nil {
		dept, err := s.store.GetDepartment(ctx, complaint.OrganizationID, *complaint.DepartmentID)
		switch {
		case err == nil:
			data.DepartmentName = dept.Name
		case !errors.Is(err, sql.ErrNoRows):
			return TemplateData{}, fmt.Errorf("get department: %w", err)
		}
	}

	responses, err := s.store.ListResponses(ctx, complaint.ID)
	if err != nil {
		return TemplateData{}, fmt.Errorf("list responses: %w", err)
	}
	for _, r := range responses {
		entry := TemplateResponse{
			Author:      authorLabel(r.AuthorType),
			MessageHTML: TextToHTML(r.Message),
			CreatedAt:   r.CreatedAt,
		}
		if r.FileURL != nil {
			entry.FileURL = *r.FileURL
		}
		data.Responses = append(data.Responses, entry)
	}
	return data, nil
}

func authorLabel(role rbac.Role) string {
	switch role {
	case rbac.RoleOrgAdmin:
		return "Organization admin"
	case rbac.RoleDeptAdmin:
		return "Department admin"
	case rbac.RoleUser:
		return "Complainant"
	default:
		return "Unknown"
	}
}
