package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys.
const (
	AttrService    = "eec.service"
	AttrFiles      = "eec.files"
	AttrRepository = "eec.repository"
	AttrOutcome    = "eec.guard.outcome"
	AttrReloaded   = "eec.reloaded"
	AttrEntityID   = "eec.entity_id"
	AttrClusterID  = "eec.cluster_id"
	AttrUsername   = "user.name"
	AttrClientIP   = "client.ip"
)

// Span names. Guard phases are children of SpanGuard.
const (
	SpanGuard        = "guard.do"
	SpanGuardLock    = "guard.lock"
	SpanGuardRefresh = "guard.refresh"
	SpanGuardHandle  = "guard.handle"
	SpanGuardPersist = "guard.persist"
	SpanFinalSave    = "workspace.final_save"
	SpanRequest      = "http.request"
)

func Service(name string) attribute.KeyValue { return attribute.String(AttrService, name) }

func Files(paths []string) attribute.KeyValue { return attribute.StringSlice(AttrFiles, paths) }

func Repository(name string) attribute.KeyValue { return attribute.String(AttrRepository, name) }

func Outcome(outcome string) attribute.KeyValue { return attribute.String(AttrOutcome, outcome) }

func Reloaded(ok bool) attribute.KeyValue { return attribute.Bool(AttrReloaded, ok) }

func EntityID(id string) attribute.KeyValue { return attribute.String(AttrEntityID, id) }

func ClusterID(id string) attribute.KeyValue { return attribute.String(AttrClusterID, id) }

func Username(name string) attribute.KeyValue { return attribute.String(AttrUsername, name) }

func ClientIP(ip string) attribute.KeyValue { return attribute.String(AttrClientIP, ip) }
