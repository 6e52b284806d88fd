package rpcServer

import (
	"net/http"
)

type ReadyResponse struct {
	Ready  bool     `json:"ready"`
	Signer string   `json:"signer,omitempty"`
	Chains []string `json:"chains"`
}

func (rpc *RpcServer) HealthCheck(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Healthy!"))
}

// ReadyCheck reports whether vouchers can be signed and for which chains.
func (rpc *RpcServer) ReadyCheck(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	chains := make([]string, 0)
	for _, c := range rpc.globalConfig.ConfiguredChains() {
		chains = append(chains, c.String())
	}
	res := &ReadyResponse{
		Ready:  rpc.guard.CanSign() && rpc.signerAddress != "",
		Signer: rpc.signerAddress,
		Chains: chains,
	}
	status := http.StatusOK
	if !res.Ready {
		status = http.StatusServiceUnavailable
	}
	rpc.writeJson(w, status, res)
}
