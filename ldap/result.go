package ldap

import "strconv"

// Result is a ldap result code.
type Result uint16

// Result values.
const (
	ResultSuccess                      Result = 0  // Success
	ResultOperationsError              Result = 1  // Operations Error
	ResultProtocolError                Result = 2  // Protocol Error
	ResultTimeLimitExceeded            Result = 3  // Time Limit Exceeded
	ResultSizeLimitExceeded            Result = 4  // Size Limit Exceeded
	ResultCompareFalse                 Result = 5  // Compare False
	ResultCompareTrue                  Result = 6  // Compare True
	ResultAuthMethodNotSupported       Result = 7  // Auth Method Not Supported
	ResultStrongAuthRequired           Result = 8  // Strong Auth Required
	ResultReferral                     Result = 10 // Referral
	ResultAdminLimitExceeded           Result = 11 // Admin Limit Exceeded
	ResultUnavailableCriticalExtension Result = 12 // Unavailable Critical Extension
	ResultConfidentialityRequired      Result = 13 // Confidentiality Required
	ResultSaslBindInProgress           Result = 14 // Sasl Bind In Progress
	ResultNoSuchAttribute              Result = 16 // No Such Attribute
	ResultNoSuchObject                 Result = 32 // No Such Object
	ResultInvalidDNSyntax              Result = 34 // Invalid DN Syntax
	ResultInappropriateAuthentication  Result = 48 // Inappropriate Authentication
	ResultInvalidCredentials           Result = 49 // Invalid Credentials
	ResultInsufficientAccessRights     Result = 50 // Insufficient Access Rights
	ResultBusy                         Result = 51 // Busy
	ResultUnavailable                  Result = 52 // Unavailable
	ResultUnwillingToPerform           Result = 53 // Unwilling To Perform
	ResultOther                        Result = 80 // Other
)

var resultNames = map[Result]string{
	ResultSuccess:                      "Success",
	ResultOperationsError:              "OperationsError",
	ResultProtocolError:                "ProtocolError",
	ResultTimeLimitExceeded:            "TimeLimitExceeded",
	ResultSizeLimitExceeded:            "SizeLimitExceeded",
	ResultCompareFalse:                 "CompareFalse",
	ResultCompareTrue:                  "CompareTrue",
	ResultAuthMethodNotSupported:       "AuthMethodNotSupported",
	ResultStrongAuthRequired:           "StrongAuthRequired",
	ResultReferral:                     "Referral",
	ResultAdminLimitExceeded:           "AdminLimitExceeded",
	ResultUnavailableCriticalExtension: "UnavailableCriticalExtension",
	ResultConfidentialityRequired:      "ConfidentialityRequired",
	ResultSaslBindInProgress:           "SaslBindInProgress",
	ResultNoSuchAttribute:              "NoSuchAttribute",
	ResultNoSuchObject:                 "NoSuchObject",
	ResultInvalidDNSyntax:              "InvalidDNSyntax",
	ResultInappropriateAuthentication:  "InappropriateAuthentication",
	ResultInvalidCredentials:           "InvalidCredentials",
	ResultInsufficientAccessRights:     "InsufficientAccessRights",
	ResultBusy:                         "Busy",
	ResultUnavailable:                  "Unavailable",
	ResultUnwillingToPerform:           "UnwillingToPerform",
	ResultOther:                        "Other",
}

// String satisfies the fmt.Stringer interface.
func (result Result) String() string {
	if s, ok := resultNames[result]; ok {
		return s
	}
	return "Result(" + strconv.Itoa(int(result)) + ")"
}
