package assembler

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/mediconsult/pkg/models"
)

// Bundle is the per-type context attached to a generation request. Exactly
// one concrete variant exists per conversation type.
type Bundle interface {
	isBundle()
}

// TriageBundle carries the hospital catalog for department routing.
type TriageBundle struct {
	Departments []models.Department
	Doctors     []models.Doctor
}

// ReportBundle carries the extracted text of a medical report.
type ReportBundle struct {
	ReportRef string
	Text      string
}

// EmptyBundle is the no-context variant for pre-diagnosis chats and for any
// assembly failure.
type EmptyBundle struct{}

func (TriageBundle) isBundle() {}
func (ReportBundle) isBundle() {}
func (EmptyBundle) isBundle()  {}

// Catalog lists departments and doctors. Served by the hospital catalog
// service.
type Catalog interface {
	Departments(ctx context.Context) ([]models.Department, error)
	Doctors(ctx context.Context) ([]models.Doctor, error)
}

// OCR extracts text from an uploaded report referenced by id.
type OCR interface {
	ExtractText(ctx context.Context, ref string) (string, error)
}

// Assembler builds the generation context for a conversation. Assembly is a
// pure read: any collaborator failure degrades to EmptyBundle.
type Assembler struct {
	catalog Catalog
	ocr     OCR
	logger  zerolog.Logger
}

// New creates an Assembler.
func New(catalog Catalog, ocr OCR, logger zerolog.Logger) *Assembler {
	return &Assembler{
		catalog: catalog,
		ocr:     ocr,
		logger:  logger.With().Str("component", "assembler").Logger(),
	}
}

// messageMeta is the subset of message metadata the assembler reads.
type messageMeta struct {
	ReportRef string `json:"reportRef"`
}

// Assemble returns the Bundle for the conversation type, reading the report
// reference from the triggering message's metadata when needed.
func (a *Assembler) Assemble(ctx context.Context, conv *models.Conversation, msg *models.Message) Bundle {
	switch conv.Type {
	case models.ConversationTriage:
		return a.assembleTriage(ctx, conv.ID)
	case models.ConversationReportInterp:
		return a.assembleReport(ctx, conv.ID, msg)
	default:
		return EmptyBundle{}
	}
}

func (a *Assembler) assembleTriage(ctx context.Context, conversationID string) Bundle {
	departments, err := a.catalog.Departments(ctx)
	if err != nil {
		a.logger.Warn().Err(err).Str("conversation_id", conversationID).Msg("catalog departments unavailable, degrading")
		return EmptyBundle{}
	}
	doctors, err := a.catalog.Doctors(ctx)
	if err != nil {
		a.logger.Warn().Err(err).Str("conversation_id", conversationID).Msg("catalog doctors unavailable, degrading")
		return EmptyBundle{}
	}
	return TriageBundle{Departments: departments, Doctors: doctors}
}

func (a *Assembler) assembleReport(ctx context.Context, conversationID string, msg *models.Message) Bundle {
	if msg == nil || len(msg.Metadata) == 0 {
		return EmptyBundle{}
	}

	var meta messageMeta
	if err := json.Unmarshal(msg.Metadata, &meta); err != nil || meta.ReportRef == "" {
		return EmptyBundle{}
	}

	text, err := a.ocr.ExtractText(ctx, meta.ReportRef)
	if err != nil {
		a.logger.Warn().Err(err).
			Str("conversation_id", conversationID).
			Str("report_ref", meta.ReportRef).
			Msg("ocr unavailable, degrading")
		return EmptyBundle{}
	}
	return ReportBundle{ReportRef: meta.ReportRef, Text: text}
}
