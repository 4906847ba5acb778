package commands

const (
	_etc = "/usr/local/etc/com.github.uoloki"
	_var = "/usr/local/var/com.github.uoloki"

	DEFAULT_WORKDIR = _var + "/dataextract"
	DEFAULT_CONFIG  = _etc + "/dataextract/dataextract.yaml"
)
