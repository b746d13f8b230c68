package modules

import "net/http"

type Module interface {
	Shutdown()
	ServeHTTP(w http.ResponseWriter, r *http.Request)
}
