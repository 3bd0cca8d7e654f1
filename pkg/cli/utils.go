package cli

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/keybase/dbus"
	"github.com/keybase/go-keychain/secretservice"
)

const (
	service    = "fiscal-ingest"
	collection = secretservice.DefaultCollection

	keychainPrefix = "keychain:"
)

// Lookup resolves a keychain element name to its secret.
type Lookup func(element string) (string, error)

// FillKeychainValues replaces every string field of args (embedded structs
// included) whose value starts with "keychain:" with the secret stored under
// that element in the Secret Service.
func FillKeychainValues[T any](args *T) error {
	var svc *secretservice.SecretService
	var session *secretservice.Session
	return FillValues(args, func(element string) (string, error) {
		if svc == nil {
			var err error
			svc, session, err = initSecretService()
			if err != nil {
				return "", fmt.Errorf("init secret service: %v", err)
			}
		}
		if session == nil {
			return "", fmt.Errorf("no session")
		}
		return keychainValue(svc, session, element)
	})
}

// FillValues is FillKeychainValues with a custom resolver.
func FillValues[T any](args *T, lookup Lookup) error {
	return fillStruct(reflect.ValueOf(args).Elem(), lookup)
}

func fillStruct(v reflect.Value, lookup Lookup) error {
	for i := 0; i < v.NumField(); i++ {
		f := v.Field(i)
		field := v.Type().Field(i)
		if f.Kind() == reflect.Struct && field.Anonymous {
			if err := fillStruct(f, lookup); err != nil {
				return err
			}
			continue
		}
		if f.Kind() != reflect.String {
			continue
		}
		if !strings.HasPrefix(f.String(), keychainPrefix) {
			continue
		}
		secretValue, err := lookup(strings.TrimPrefix(f.String(), keychainPrefix))
		if err != nil {
			return err
		}
		if !f.CanSet() {
			return fmt.Errorf("set value for field %s", field.Name)
		}
		f.SetString(secretValue)
	}
	return nil
}

func keychainValue(svc *secretservice.SecretService, session *secretservice.Session, keychainElement string) (string, error) {
	items, err := svc.SearchCollection(collection, secretservice.Attributes{
		"service": service,
		"element": keychainElement,
	})
	if err != nil {
		return "", fmt.Errorf("search keychain element: %v", err)
	}
	if len(items) < 1 {
		return "", fmt.Errorf("keychain element %s not found", keychainElement)
	}
	if len(items) > 1 {
		return "", fmt.Errorf("found more than one keychain elements for %s", keychainElement)
	}
	secretValue, err := svc.GetSecret(items[0], *session)
	if err != nil {
		return "", fmt.Errorf("get value from keychain: %v", err)
	}
	return string(secretValue), nil
}

func initSecretService() (*secretservice.SecretService, *secretservice.Session, error) {
	svc, err := secretservice.NewService()
	if err != nil {
		return nil, nil, fmt.Errorf("create keychain service: %v", err)
	}
	if err := svc.Unlock([]dbus.ObjectPath{collection}); err != nil {
		return nil, nil, fmt.Errorf("unlock keychain service: %v", err)
	}
	session, err := svc.OpenSession(secretservice.AuthenticationDHAES)
	if err != nil {
		return nil, nil, fmt.Errorf("open session: %v", err)
	}
	return svc, session, nil
}
