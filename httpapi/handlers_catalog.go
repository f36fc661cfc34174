package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrEthical07/docportal/catalog"
)

/*
====================================
PUBLIC VIEWS
====================================
*/

func (h *Handler) listPeriods(w http.ResponseWriter, r *http.Request) {
	periods, err := h.catalog.ListPeriods(r.Context())
	if err != nil {
		h.writeMappedError(r.Context(), w, "list_periods", err)
		return
	}
	writeSuccess(w, http.StatusOK, periods)
}

func (h *Handler) getPeriod(w http.ResponseWriter, r *http.Request) {
	period, err := h.catalog.GetPeriod(r.Context(), chi.URLParam(r, "periodID"))
	if err != nil {
		h.writeMappedError(r.Context(), w, "get_period", err)
		return
	}
	writeSuccess(w, http.StatusOK, period)
}

func (h *Handler) periodEvents(w http.ResponseWriter, r *http.Request) {
	periodID := chi.URLParam(r, "periodID")
	if _, err := h.catalog.GetPeriod(r.Context(), periodID); err != nil {
		h.writeMappedError(r.Context(), w, "period_events", err)
		return
	}
	events, err := h.catalog.EventsByPeriod(r.Context(), periodID)
	if err != nil {
		h.writeMappedError(r.Context(), w, "period_events", err)
		return
	}
	writeSuccess(w, http.StatusOK, events)
}

func (h *Handler) getEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.catalog.GetEvent(r.Context(), chi.URLParam(r, "eventID"))
	if err != nil {
		h.writeMappedError(r.Context(), w, "get_event", err)
		return
	}
	writeSuccess(w, http.StatusOK, event)
}

/*
====================================
ADMIN DASHBOARD
====================================
*/

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.catalog.Stats(r.Context())
	if err != nil {
		h.writeMappedError(r.Context(), w, "stats", err)
		return
	}
	writeSuccess(w, http.StatusOK, stats)
}

func (h *Handler) activity(w http.ResponseWriter, r *http.Request) {
	limit := parseIntDefault(r.URL.Query().Get("limit"), catalog.DefaultActivityLimit)
	items, err := h.catalog.RecentActivity(r.Context(), limit)
	if err != nil {
		h.writeMappedError(r.Context(), w, "recent_activity", err)
		return
	}
	writeSuccess(w, http.StatusOK, items)
}

/*
====================================
ADMIN PERIODS
====================================
*/

func (h *Handler) createPeriod(w http.ResponseWriter, r *http.Request) {
	var in catalog.PeriodInput
	if err := decodeBody(w, r, &in); err != nil {
		h.writeValidationError(r.Context(), w, "create_period", err)
		return
	}
	period, err := h.catalog.CreatePeriod(r.Context(), in)
	if err != nil {
		h.writeMappedError(r.Context(), w, "create_period", err)
		return
	}
	writeSuccess(w, http.StatusCreated, period)
}

func (h *Handler) updatePeriod(w http.ResponseWriter, r *http.Request) {
	var in catalog.PeriodInput
	if err := decodeBody(w, r, &in); err != nil {
		h.writeValidationError(r.Context(), w, "update_period", err)
		return
	}
	period, err := h.catalog.UpdatePeriod(r.Context(), chi.URLParam(r, "periodID"), in)
	if err != nil {
		h.writeMappedError(r.Context(), w, "update_period", err)
		return
	}
	writeSuccess(w, http.StatusOK, period)
}

func (h *Handler) deletePeriod(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.DeletePeriod(r.Context(), chi.URLParam(r, "periodID")); err != nil {
		h.writeMappedError(r.Context(), w, "delete_period", err)
		return
	}
	writeMessage(w, http.StatusOK, "period deleted")
}

/*
====================================
ADMIN EVENTS
====================================
*/

func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	var (
		events []catalog.Event
		err    error
	)
	if periodID := r.URL.Query().Get("period_id"); periodID != "" {
		events, err = h.catalog.EventsByPeriod(r.Context(), periodID)
	} else {
		events, err = h.catalog.ListEvents(r.Context())
	}
	if err != nil {
		h.writeMappedError(r.Context(), w, "list_events", err)
		return
	}
	writeSuccess(w, http.StatusOK, events)
}

func (h *Handler) createEvent(w http.ResponseWriter, r *http.Request) {
	var in catalog.EventInput
	if err := decodeBody(w, r, &in); err != nil {
		h.writeValidationError(r.Context(), w, "create_event", err)
		return
	}
	event, err := h.catalog.CreateEvent(r.Context(), in)
	if err != nil {
		h.writeMappedError(r.Context(), w, "create_event", err)
		return
	}
	writeSuccess(w, http.StatusCreated, event)
}

func (h *Handler) updateEvent(w http.ResponseWriter, r *http.Request) {
	var in catalog.EventInput
	if err := decodeBody(w, r, &in); err != nil {
		h.writeValidationError(r.Context(), w, "update_event", err)
		return
	}
	event, err := h.catalog.UpdateEvent(r.Context(), chi.URLParam(r, "eventID"), in)
	if err != nil {
		h.writeMappedError(r.Context(), w, "update_event", err)
		return
	}
	writeSuccess(w, http.StatusOK, event)
}

func (h *Handler) deleteEvent(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.DeleteEvent(r.Context(), chi.URLParam(r, "eventID")); err != nil {
		h.writeMappedError(r.Context(), w, "delete_event", err)
		return
	}
	writeMessage(w, http.StatusOK, "event deleted")
}

/*
====================================
ADMIN LINKS
====================================
*/

func (h *Handler) listLinks(w http.ResponseWriter, r *http.Request) {
	var (
		links []catalog.ResourceLink
		err   error
	)
	if eventID := r.URL.Query().Get("event_id"); eventID != "" {
		links, err = h.catalog.LinksByEvent(r.Context(), eventID)
	} else {
		links, err = h.catalog.ListLinks(r.Context())
	}
	if err != nil {
		h.writeMappedError(r.Context(), w, "list_links", err)
		return
	}
	writeSuccess(w, http.StatusOK, links)
}

func (h *Handler) createLink(w http.ResponseWriter, r *http.Request) {
	var in catalog.LinkInput
	if err := decodeBody(w, r, &in); err != nil {
		h.writeValidationError(r.Context(), w, "create_link", err)
		return
	}
	link, err := h.catalog.CreateLink(r.Context(), in)
	if err != nil {
		h.writeMappedError(r.Context(), w, "create_link", err)
		return
	}
	writeSuccess(w, http.StatusCreated, link)
}

func (h *Handler) updateLink(w http.ResponseWriter, r *http.Request) {
	var in catalog.LinkInput
	if err := decodeBody(w, r, &in); err != nil {
		h.writeValidationError(r.Context(), w, "update_link", err)
		return
	}
	link, err := h.catalog.UpdateLink(r.Context(), chi.URLParam(r, "linkID"), in)
	if err != nil {
		h.writeMappedError(r.Context(), w, "update_link", err)
		return
	}
	writeSuccess(w, http.StatusOK, link)
}

func (h *Handler) deleteLink(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.DeleteLink(r.Context(), chi.URLParam(r, "linkID")); err != nil {
		h.writeMappedError(r.Context(), w, "delete_link", err)
		return
	}
	writeMessage(w, http.StatusOK, "link deleted")
}
