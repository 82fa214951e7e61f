package labels

import "github.com/ignite/wa-outreach/internal/domain"

var builtin = map[string]map[domain.StatusDomain]map[string]string{
	"pt": {
		domain.DomainRun: {
			"scheduled": "Agendada",
			"running":   "Rodando",
			"paused":    "Pausada",
			"done":      "Concluída",
			"dead":      "Interrompida",
		},
		domain.DomainTarget: {
			"queued":    "Na fila",
			"sending":   "Enviando",
			"sent":      "Enviado",
			"delivered": "Entregue",
			"read":      "Lido",
			"failed":    "Falhou",
			"skipped":   "Ignorado",
		},
		domain.DomainEvent: {
			"sending":   "Envio iniciado",
			"sent":      "Enviado",
			"delivered": "Entregue",
			"read":      "Lido",
			"failed":    "Falha no envio",
			"skipped":   "Pulado",
		},
	},
	"en": {
		domain.DomainRun: {
			"scheduled": "Scheduled",
			"running":   "Running",
			"paused":    "Paused",
			"done":      "Done",
			"dead":      "Stopped",
		},
		domain.DomainTarget: {
			"queued":    "Queued",
			"sending":   "Sending",
			"sent":      "Sent",
			"delivered": "Delivered",
			"read":      "Read",
			"failed":    "Failed",
			"skipped":   "Skipped",
		},
		domain.DomainEvent: {
			"sending":   "Send started",
			"sent":      "Sent",
			"delivered": "Delivered",
			"read":      "Read",
			"failed":    "Send failed",
			"skipped":   "Skipped by dispatcher",
		},
	},
}
