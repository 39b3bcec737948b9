package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"shopcore.dev/internal/auth"
	"shopcore.dev/internal/commerce"
	"shopcore.dev/internal/paging"
)

// Addresses use the customer permissions, line items the order permissions.
func (a *API) customerRoutes(r chi.Router) {
	r.With(a.requirePermission(auth.PermCreateCustomer)).Post("/", a.handleCreateCustomer)
	r.With(a.requirePermission(auth.PermReadCustomer)).Get("/", a.handleListCustomers)

	r.Route("/{customerId}", func(r chi.Router) {
		r.With(a.requirePermission(auth.PermReadCustomer)).Get("/", a.handleGetCustomer)
		r.With(a.requirePermission(auth.PermUpdateCustomer)).Put("/", a.handleUpdateCustomer)
		r.With(a.requirePermission(auth.PermDeleteCustomer)).Delete("/", a.handleDeleteCustomer)

		r.With(a.requirePermission(auth.PermCreateCustomer)).Post("/addresses", a.handleCreateAddress)
		r.Route("/addresses/{addressId}", func(r chi.Router) {
			r.With(a.requirePermission(auth.PermReadCustomer)).Get("/", a.handleGetAddress)
			r.With(a.requirePermission(auth.PermUpdateCustomer)).Put("/", a.handleUpdateAddress)
			r.With(a.requirePermission(auth.PermDeleteCustomer)).Delete("/", a.handleDeleteAddress)
		})

		r.With(a.requirePermission(auth.PermCreateOrder)).Post("/orders", a.handleCreateOrder)
		r.With(a.requirePermission(auth.PermReadOrder)).Get("/orders", a.handleListOrders)
		r.Route("/orders/{orderId}", func(r chi.Router) {
			r.With(a.requirePermission(auth.PermReadOrder)).Get("/", a.handleGetOrder)
			r.With(a.requirePermission(auth.PermUpdateOrder)).Put("/", a.handleUpdateOrder)
			r.With(a.requirePermission(auth.PermDeleteOrder)).Delete("/", a.handleDeleteOrder)

			r.With(a.requirePermission(auth.PermCreateOrder)).Post("/lineItems", a.handleCreateLineItem)
			r.With(a.requirePermission(auth.PermReadOrder)).Get("/lineItems", a.handleListLineItems)
			r.Route("/lineItems/{lineItemId}", func(r chi.Router) {
				r.With(a.requirePermission(auth.PermReadOrder)).Get("/", a.handleGetLineItem)
				r.With(a.requirePermission(auth.PermUpdateOrder)).Put("/", a.handleUpdateLineItem)
				r.With(a.requirePermission(auth.PermDeleteOrder)).Delete("/", a.handleDeleteLineItem)
			})
		})
	})
}

// --- customers ---

func (a *API) handleCreateCustomer(w http.ResponseWriter, r *http.Request) {
	var in commerce.CustomerInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := a.commerce.CreateCustomer(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCreated(w, "/customers/"+c.ID, c)
}

func (a *API) handleListCustomers(w http.ResponseWriter, r *http.Request) {
	page, err := a.commerce.ListCustomers(r.Context(), paging.FromQuery(r.URL.Query()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (a *API) handleGetCustomer(w http.ResponseWriter, r *http.Request) {
	c, err := a.commerce.GetCustomer(r.Context(), chi.URLParam(r, "customerId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *API) handleUpdateCustomer(w http.ResponseWriter, r *http.Request) {
	var in commerce.CustomerInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := a.commerce.UpdateCustomer(r.Context(), chi.URLParam(r, "customerId"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *API) handleDeleteCustomer(w http.ResponseWriter, r *http.Request) {
	if err := a.commerce.DeleteCustomer(r.Context(), chi.URLParam(r, "customerId")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- addresses ---

func (a *API) handleCreateAddress(w http.ResponseWriter, r *http.Request) {
	var in commerce.AddressInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	customerID := chi.URLParam(r, "customerId")
	addr, err := a.commerce.CreateAddress(r.Context(), customerID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCreated(w, "/customers/"+customerID+"/addresses/"+addr.ID, addr)
}

func (a *API) handleGetAddress(w http.ResponseWriter, r *http.Request) {
	addr, err := a.commerce.GetAddress(r.Context(), chi.URLParam(r, "customerId"), chi.URLParam(r, "addressId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, addr)
}

func (a *API) handleUpdateAddress(w http.ResponseWriter, r *http.Request) {
	var in commerce.AddressInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	addr, err := a.commerce.UpdateAddress(r.Context(), chi.URLParam(r, "customerId"), chi.URLParam(r, "addressId"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, addr)
}

func (a *API) handleDeleteAddress(w http.ResponseWriter, r *http.Request) {
	if err := a.commerce.DeleteAddress(r.Context(), chi.URLParam(r, "customerId"), chi.URLParam(r, "addressId")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- orders ---

func (a *API) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var in commerce.OrderInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	customerID := chi.URLParam(r, "customerId")
	o, err := a.commerce.CreateOrder(r.Context(), customerID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCreated(w, "/customers/"+customerID+"/orders/"+o.ID, o)
}

func (a *API) handleListOrders(w http.ResponseWriter, r *http.Request) {
	page, err := a.commerce.ListOrders(r.Context(), chi.URLParam(r, "customerId"), paging.FromQuery(r.URL.Query()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (a *API) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := a.commerce.GetOrder(r.Context(), chi.URLParam(r, "customerId"), chi.URLParam(r, "orderId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (a *API) handleUpdateOrder(w http.ResponseWriter, r *http.Request) {
	var in commerce.OrderInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	o, err := a.commerce.UpdateOrder(r.Context(), chi.URLParam(r, "customerId"), chi.URLParam(r, "orderId"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (a *API) handleDeleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := a.commerce.DeleteOrder(r.Context(), chi.URLParam(r, "customerId"), chi.URLParam(r, "orderId")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- line items ---

func (a *API) handleCreateLineItem(w http.ResponseWriter, r *http.Request) {
	var in commerce.LineItemInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	customerID, orderID := chi.URLParam(r, "customerId"), chi.URLParam(r, "orderId")
	li, err := a.commerce.CreateLineItem(r.Context(), customerID, orderID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCreated(w, "/customers/"+customerID+"/orders/"+orderID+"/lineItems/"+li.ID, li)
}

func (a *API) handleListLineItems(w http.ResponseWriter, r *http.Request) {
	page, err := a.commerce.ListLineItems(r.Context(), chi.URLParam(r, "customerId"), chi.URLParam(r, "orderId"), paging.FromQuery(r.URL.Query()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (a *API) handleGetLineItem(w http.ResponseWriter, r *http.Request) {
	li, err := a.commerce.GetLineItem(r.Context(), chi.URLParam(r, "customerId"), chi.URLParam(r, "orderId"), chi.URLParam(r, "lineItemId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, li)
}

func (a *API) handleUpdateLineItem(w http.ResponseWriter, r *http.Request) {
	var in commerce.LineItemInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	li, err := a.commerce.UpdateLineItem(r.Context(), chi.URLParam(r, "customerId"), chi.URLParam(r, "orderId"), chi.URLParam(r, "lineItemId"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, li)
}

func (a *API) handleDeleteLineItem(w http.ResponseWriter, r *http.Request) {
	if err := a.commerce.DeleteLineItem(r.Context(), chi.URLParam(r, "customerId"), chi.URLParam(r, "orderId"), chi.URLParam(r, "lineItemId")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
